package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"ai-assist/internal/domain"
)

// QueryAPI is the query side used by the handlers.
type QueryAPI interface {
	Ask(ctx context.Context, caller domain.Caller, req domain.QueryRequest) (*domain.QueryResult, error)
	ListProviders(ctx context.Context, caller domain.Caller) (*domain.ProvidersView, error)
}

// SettingsAPI is the settings side used by the handlers.
type SettingsAPI interface {
	GlobalView(ctx context.Context) (*domain.Settings, error)
	UserView(ctx context.Context, caller domain.Caller) (*domain.Settings, error)
	SaveGlobal(ctx context.Context, caller domain.Caller, in domain.GlobalSettingsInput) (*domain.Settings, error)
	SaveUser(ctx context.Context, caller domain.Caller, in domain.UserSettingsInput) (*domain.Settings, error)
}

// HandlerDeps holds dependencies needed by the REST and RPC handlers.
type HandlerDeps struct {
	Queries  QueryAPI
	Settings SettingsAPI
	Logger   *slog.Logger
}

type handlers struct {
	deps      HandlerDeps
	validator *bodyValidator
	auth      Authenticator
	started   time.Time
}

func newHandlers(s *Server, deps HandlerDeps) (*handlers, error) {
	v, err := newBodyValidator(querySchema)
	if err != nil {
		return nil, err
	}
	return &handlers{deps: deps, validator: v, auth: s.auth, started: time.Now()}, nil
}

// RegisterRESTHandlers registers the HTTP API on the gateway server.
func RegisterRESTHandlers(s *Server, deps HandlerDeps) error {
	h, err := newHandlers(s, deps)
	if err != nil {
		return err
	}

	s.RegisterHTTPRoute("GET /healthz", h.health)
	s.RegisterHTTPRoute("POST /api/v1/query", h.authenticated(h.query))
	s.RegisterHTTPRoute("GET /api/v1/providers", h.authenticated(h.providers))
	s.RegisterHTTPRoute("GET /api/v1/settings/global", h.authenticated(h.globalSettings))
	s.RegisterHTTPRoute("PUT /api/v1/settings/global", h.authenticated(h.saveGlobalSettings))
	s.RegisterHTTPRoute("GET /api/v1/settings/user", h.authenticated(h.userSettings))
	s.RegisterHTTPRoute("PUT /api/v1/settings/user", h.authenticated(h.saveUserSettings))
	return nil
}

// RegisterDefaultHandlers registers the WebSocket RPC methods.
func RegisterDefaultHandlers(s *Server, deps HandlerDeps) error {
	h, err := newHandlers(s, deps)
	if err != nil {
		return err
	}
	s.RegisterHandler("ai.query", h.rpcQuery)
	s.RegisterHandler("ai.providers", h.rpcProviders)
	return nil
}

// authenticated resolves the bearer token to a caller stored in the
// request context.
func (h *handlers) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := h.auth.Authenticate(requestToken(r))
		if err != nil {
			writeError(w, h.deps.Logger, err)
			return
		}
		ctx := domain.ContextWithCaller(r.Context(), info.Caller())
		next(w, r.WithContext(ctx))
	}
}

func callerOf(ctx context.Context) domain.Caller {
	c, _ := domain.CallerFromContext(ctx)
	return c
}

// readBody reads the (size-limited) request body.
func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, domain.NewDomainError("gateway.readBody", domain.ErrValidation,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		}
		return nil, domain.NewDomainError("gateway.readBody", domain.ErrValidation, "unreadable request body")
	}
	return body, nil
}

func decodeBody(r *http.Request, v any) error {
	body, err := readBody(r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return domain.NewDomainError("gateway.decodeBody", domain.ErrValidation, "Invalid JSON body")
	}
	return nil
}

type queryResponse struct {
	Success bool `json:"success"`
	*domain.QueryResult
}

type providersResponse struct {
	Success bool `json:"success"`
	*domain.ProvidersView
}

type settingsResponse struct {
	Success  bool             `json:"success"`
	Settings *domain.Settings `json:"settings"`
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}

func (h *handlers) query(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, h.deps.Logger, err)
		return
	}
	req, err := h.validator.decodeQuery(body)
	if err != nil {
		writeError(w, h.deps.Logger, err)
		return
	}

	res, err := h.deps.Queries.Ask(r.Context(), callerOf(r.Context()), req)
	if err != nil {
		h.deps.Logger.Info("query rejected",
			"request_id", domain.RequestIDFromContext(r.Context()),
			"code", domain.ErrorCodeOf(err),
		)
		writeError(w, h.deps.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, queryResponse{Success: true, QueryResult: res})
}

func (h *handlers) providers(w http.ResponseWriter, r *http.Request) {
	view, err := h.deps.Queries.ListProviders(r.Context(), callerOf(r.Context()))
	if err != nil {
		writeError(w, h.deps.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, providersResponse{Success: true, ProvidersView: view})
}

func (h *handlers) globalSettings(w http.ResponseWriter, r *http.Request) {
	doc, err := h.deps.Settings.GlobalView(r.Context())
	h.writeSettings(w, doc, err)
}

func (h *handlers) saveGlobalSettings(w http.ResponseWriter, r *http.Request) {
	var in domain.GlobalSettingsInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, h.deps.Logger, err)
		return
	}
	doc, err := h.deps.Settings.SaveGlobal(r.Context(), callerOf(r.Context()), in)
	h.writeSettings(w, doc, err)
}

func (h *handlers) userSettings(w http.ResponseWriter, r *http.Request) {
	doc, err := h.deps.Settings.UserView(r.Context(), callerOf(r.Context()))
	h.writeSettings(w, doc, err)
}

func (h *handlers) saveUserSettings(w http.ResponseWriter, r *http.Request) {
	var in domain.UserSettingsInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, h.deps.Logger, err)
		return
	}
	doc, err := h.deps.Settings.SaveUser(r.Context(), callerOf(r.Context()), in)
	h.writeSettings(w, doc, err)
}

func (h *handlers) writeSettings(w http.ResponseWriter, doc *domain.Settings, err error) {
	if err != nil {
		writeError(w, h.deps.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{Success: true, Settings: doc})
}

// --- RPC ---

func (h *handlers) rpcQuery(ctx context.Context, client *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
	req, err := h.validator.decodeQuery(payload)
	if err != nil {
		return nil, domain.NewDomainError("ai.query", domain.ErrRPCInvalidPayload, publicMessage(err))
	}
	res, err := h.deps.Queries.Ask(ctx, client.Caller(), req)
	if err != nil {
		return nil, err
	}
	return json.Marshal(queryResponse{Success: true, QueryResult: res})
}

func (h *handlers) rpcProviders(ctx context.Context, client *ClientInfo, _ json.RawMessage) (json.RawMessage, error) {
	view, err := h.deps.Queries.ListProviders(ctx, client.Caller())
	if err != nil {
		return nil, err
	}
	return json.Marshal(providersResponse{Success: true, ProvidersView: view})
}
