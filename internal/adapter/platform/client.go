// Package platform reads global macros from the monitoring platform's
// JSON-RPC API.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"ai-assist/internal/domain"
	"ai-assist/internal/infra/config"
)

const maxRPCResponse = 1 << 20

// Client is a minimal JSON-RPC 2.0 client for the platform API.
type Client struct {
	url    string
	token  string
	client *http.Client
	nextID atomic.Uint64
	logger *slog.Logger
}

// NewClient builds a client from cfg. It returns nil when no URL is
// configured, which disables the macro step of key derivation.
func NewClient(cfg config.PlatformConfig, logger *slog.Logger) *Client {
	if cfg.URL == "" {
		return nil
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		url:    cfg.URL,
		token:  cfg.Token,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      uint64 `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type macroParams struct {
	GlobalMacro bool              `json:"globalmacro"`
	Output      []string          `json:"output"`
	Filter      map[string]string `json:"filter"`
}

// LookupMacro implements domain.MacroSource. ok is false when the macro is
// not defined.
func (c *Client) LookupMacro(ctx context.Context, name string) (string, bool, error) {
	var macros []struct {
		Value string `json:"value"`
	}
	err := c.call(ctx, "usermacro.get", macroParams{
		GlobalMacro: true,
		Output:      []string{"value"},
		Filter:      map[string]string{"macro": name},
	}, &macros)
	if err != nil {
		return "", false, err
	}
	if len(macros) == 0 {
		c.logger.Debug("platform macro not defined", "macro", name)
		return "", false, nil
	}
	return macros[0].Value, true, nil
}

func (c *Client) call(ctx context.Context, method string, params, result any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json-rpc")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.NewDomainError("platform."+method, domain.ErrTransport, err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxRPCResponse))
	if err != nil {
		return domain.NewDomainError("platform."+method, domain.ErrTransport, err.Error())
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return domain.NewUpstreamError(resp.StatusCode, raw)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return domain.NewDomainError("platform."+method, domain.ErrInvalidResponse, err.Error())
	}
	if rpcResp.Error != nil {
		return domain.NewDomainError("platform."+method, domain.ErrUpstream,
			fmt.Sprintf("%d %s %s", rpcResp.Error.Code, rpcResp.Error.Message, rpcResp.Error.Data))
	}
	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return domain.NewDomainError("platform."+method, domain.ErrInvalidResponse, err.Error())
	}
	return nil
}

var _ domain.MacroSource = (*Client)(nil)
