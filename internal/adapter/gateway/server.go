package gateway

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"ai-assist/internal/domain"
)

// RPCHandler serves one RPC method. The returned payload becomes the
// response frame's payload.
type RPCHandler func(ctx context.Context, client *ClientInfo, payload json.RawMessage) (json.RawMessage, error)

const (
	defaultSendQueue = 64
	writeTimeout     = 5 * time.Second
	shutdownTimeout  = 5 * time.Second
)

var defaultOrigins = []string{"localhost", "localhost:*", "127.0.0.1", "127.0.0.1:*", "[::1]", "[::1]:*"}

// ServerOption customises a Server.
type ServerOption func(*Server)

// WithAllowedOrigins replaces the WebSocket origin allow-list. Patterns use
// path.Match syntax against the Origin host.
func WithAllowedOrigins(patterns ...string) ServerOption {
	return func(s *Server) {
		if len(patterns) > 0 {
			s.origins = patterns
		}
	}
}

// WithSendQueue sets the per-connection outbound frame buffer.
func WithSendQueue(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.sendQueue = n
		}
	}
}

type wsClient struct {
	id     uint64
	info   *ClientInfo
	conn   *websocket.Conn
	out    chan Frame
	closed chan struct{}
	once   sync.Once
}

func (c *wsClient) shutdown() { c.once.Do(func() { close(c.closed) }) }

// Server hosts the REST routes and the /ws RPC endpoint on one listener.
type Server struct {
	auth      Authenticator
	logger    *slog.Logger
	addr      string
	origins   []string
	sendQueue int

	mu       sync.RWMutex
	methods  map[string]RPCHandler
	routes   map[string]http.HandlerFunc
	wrappers []func(http.Handler) http.Handler
	clients  map[uint64]*wsClient
	httpSrv  *http.Server
	bound    string

	lastID atomic.Uint64
}

func NewServer(auth Authenticator, addr string, logger *slog.Logger, opts ...ServerOption) *Server {
	s := &Server{
		auth:      auth,
		logger:    logger,
		addr:      addr,
		origins:   defaultOrigins,
		sendQueue: defaultSendQueue,
		methods:   make(map[string]RPCHandler),
		routes:    make(map[string]http.HandlerFunc),
		clients:   make(map[uint64]*wsClient),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterHandler binds an RPC method. It may be called while clients are
// connected.
func (s *Server) RegisterHandler(method string, h RPCHandler) {
	s.mu.Lock()
	s.methods[method] = h
	s.mu.Unlock()
}

// RegisterHTTPRoute binds a ServeMux pattern. Routes registered after Start
// are ignored.
func (s *Server) RegisterHTTPRoute(pattern string, h http.HandlerFunc) {
	s.mu.Lock()
	s.routes[pattern] = h
	s.mu.Unlock()
}

// Use adds middleware; the first one registered is the outermost.
func (s *Server) Use(mw ...func(http.Handler) http.Handler) {
	s.mu.Lock()
	s.wrappers = append(s.wrappers, mw...)
	s.mu.Unlock()
}

// Handler builds the mux with every registered route and middleware.
func (s *Server) Handler() http.Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	for pattern, h := range s.routes {
		mux.HandleFunc(pattern, h)
	}
	var h http.Handler = mux
	for i := len(s.wrappers) - 1; i >= 0; i-- {
		h = s.wrappers[i](h)
	}
	return h
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}

	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	s.mu.Lock()
	s.httpSrv = srv
	s.bound = ln.Addr().String()
	s.mu.Unlock()

	s.logger.Info("gateway listening", "addr", ln.Addr().String())

	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			s.Stop(context.Background())
		case <-stopped:
		}
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// Stop closes every WebSocket client and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	clients := s.clients
	s.clients = make(map[uint64]*wsClient)
	srv := s.httpSrv
	s.mu.Unlock()

	for _, c := range clients {
		c.shutdown()
		c.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}

// BoundAddr is the listener address, empty until Start has bound.
func (s *Server) BoundAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bound
}

// ActiveClients reports the number of open WebSocket connections.
func (s *Server) ActiveClients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	info, err := s.auth.Authenticate(requestToken(r))
	if err != nil {
		writeError(w, s.logger, domain.ErrGatewayAuthFailed)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}

	c := &wsClient{
		id:     s.lastID.Add(1),
		info:   info,
		conn:   conn,
		out:    make(chan Frame, s.sendQueue),
		closed: make(chan struct{}),
	}
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()
	s.logger.Info("ws client connected", "conn_id", c.id, "caller", info.Name)

	go s.pump(c)
	s.serveClient(r.Context(), c)

	c.shutdown()
	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()
	conn.Close(websocket.StatusNormalClosure, "")
	s.logger.Info("ws client disconnected", "conn_id", c.id)
}

// serveClient reads frames until the connection fails or is closed.
func (s *Server) serveClient(ctx context.Context, c *wsClient) {
	for {
		var f Frame
		if err := wsjson.Read(ctx, c.conn, &f); err != nil {
			return
		}
		switch f.Type {
		case FrameTypeRequest:
			go s.dispatch(ctx, c, f)
		default:
			s.logger.Debug("ignoring frame", "conn_id", c.id, "type", f.Type)
		}
		select {
		case <-c.closed:
			return
		default:
		}
	}
}

// pump drains the outbound queue onto the socket.
func (s *Server) pump(c *wsClient) {
	for {
		select {
		case <-c.closed:
			return
		case f := <-c.out:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := wsjson.Write(ctx, c.conn, f)
			cancel()
			if err != nil {
				s.logger.Debug("ws write failed", "conn_id", c.id, "error", err)
				return
			}
		}
	}
}

func (s *Server) dispatch(ctx context.Context, c *wsClient, req Frame) {
	s.mu.RLock()
	h, ok := s.methods[req.Method]
	s.mu.RUnlock()
	if !ok {
		s.reply(c, req.ID, nil, domain.NewDomainError("rpc", domain.ErrRPCMethodNotFound, req.Method))
		return
	}

	reqID := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	ctx = domain.ContextWithRequestID(ctx, reqID)
	ctx = domain.ContextWithCaller(ctx, c.info.Caller())

	result, err := h(ctx, c.info, req.Payload)
	if err != nil {
		s.logger.Debug("rpc failed", "method", req.Method, "request_id", reqID, "error", err)
	}
	s.reply(c, req.ID, result, err)
}

// reply queues a response frame, dropping it when the client is too slow
// to drain its queue.
func (s *Server) reply(c *wsClient, id uint64, result json.RawMessage, err error) {
	f := Frame{Type: FrameTypeResponse, ID: id, Payload: result}
	if err != nil {
		f.Error = publicMessage(err)
		f.Code = string(domain.ErrorCodeOf(err))
	}
	select {
	case c.out <- f:
	case <-c.closed:
	default:
		s.logger.Warn("dropped rpc response", "conn_id", c.id, "frame_id", id)
	}
}
