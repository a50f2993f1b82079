package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"ominis/native/market"
	"ominis/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	verifierScope   = "verifier"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeRateLimited    = -32020

	codeMarketValidation    = -32030
	codeMarketAuthorization = -32031
	codeMarketState         = -32032
	codeMarketTemporal      = -32033
	codeMarketEconomic      = -32034
	codeMarketNotFound      = -32035
)

// ServerConfig carries the transport-level knobs of the JSON-RPC surface.
type ServerConfig struct {
	// VerifierJWTSecret signs bearer tokens authorising the privileged
	// verifier methods. Empty disables those methods entirely.
	VerifierJWTSecret string
	RateLimitPerMin   float64
	RateLimitBurst    int
}

// Server exposes the settlement engine over JSON-RPC 2.0.
type Server struct {
	engine *market.Engine
	logger *slog.Logger
	cfg    ServerConfig
	secret []byte

	mu       sync.Mutex
	visitors map[string]*rate.Limiter
}

// NewServer wires the engine behind the RPC surface.
func NewServer(engine *market.Engine, logger *slog.Logger, cfg ServerConfig) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RateLimitPerMin <= 0 {
		cfg.RateLimitPerMin = 300
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 20
	}
	return &Server{
		engine:   engine,
		logger:   logger,
		cfg:      cfg,
		secret:   []byte(strings.TrimSpace(cfg.VerifierJWTSecret)),
		visitors: make(map[string]*rate.Limiter),
	}
}

// Handler builds the HTTP mux: the JSON-RPC endpoint plus health and
// prometheus metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Start serves the RPC surface until the listener fails.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting JSON-RPC server", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj})
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

// writeMarketError maps the settlement error taxonomy onto distinct RPC
// codes so callers can tell a retryable rejection from a dead end.
func writeMarketError(w http.ResponseWriter, id interface{}, err error) {
	if errors.Is(err, market.ErrOrderNotFound) {
		writeError(w, http.StatusNotFound, id, codeMarketNotFound, "order not found", nil)
		return
	}
	switch market.CategoryOf(err) {
	case market.ErrCategoryValidation:
		writeError(w, http.StatusBadRequest, id, codeMarketValidation, err.Error(), nil)
	case market.ErrCategoryAuthorization:
		writeError(w, http.StatusForbidden, id, codeMarketAuthorization, err.Error(), nil)
	case market.ErrCategoryState:
		writeError(w, http.StatusConflict, id, codeMarketState, err.Error(), nil)
	case market.ErrCategoryTemporal:
		writeError(w, http.StatusConflict, id, codeMarketTemporal, err.Error(), nil)
	case market.ErrCategoryEconomic:
		writeError(w, http.StatusPaymentRequired, id, codeMarketEconomic, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, "internal error", err.Error())
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() { _ = reader.Close() }()

	w.Header().Set("Content-Type", "application/json")

	if !s.allow(r) {
		writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate limit exceeded", nil)
		return
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}

	started := time.Now()
	outcome := s.dispatch(w, r, req)
	observability.MarketMetrics().ObserveOperation(req.Method, outcome, time.Since(started))
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	handler, ok := s.routes()[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method), nil)
		return "method_not_found"
	}
	if handler.privileged {
		if err := s.requireVerifier(r); err != nil {
			writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, err.Error(), nil)
			return "unauthorized"
		}
	}
	return handler.fn(w, req)
}

type route struct {
	privileged bool
	fn         func(http.ResponseWriter, *RPCRequest) string
}

func (s *Server) routes() map[string]route {
	return map[string]route{
		"market_post":         {fn: s.handlePost},
		"market_accept":       {fn: s.handleAccept},
		"market_commit":       {fn: s.handleCommit},
		"market_reveal":       {fn: s.handleReveal},
		"market_claimReward":  {fn: s.handleClaimReward},
		"market_claimTimeout": {fn: s.handleClaimTimeout},
		"market_cancel":       {fn: s.handleCancel},
		"market_challenge":    {fn: s.handleChallenge},
		"market_resolve":      {privileged: true, fn: s.handleResolve},
		"market_verify":       {privileged: true, fn: s.handleVerify},
		"market_get":          {fn: s.handleGet},
		"market_listOpen":     {fn: s.handleListOpen},
		"market_balanceOf":    {fn: s.handleBalanceOf},
	}
}

// requireVerifier validates the bearer JWT for privileged methods: HS256
// with the configured secret and a scope claim containing "verifier".
func (s *Server) requireVerifier(r *http.Request) error {
	if len(s.secret) == 0 {
		return errors.New("privileged methods disabled: no verifier secret configured")
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return errors.New("missing bearer token")
	}
	tokenString := strings.TrimSpace(header[len(prefix):])
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return errors.New("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return errors.New("invalid claims")
	}
	scope, _ := claims["scope"].(string)
	for _, part := range strings.Fields(scope) {
		if part == verifierScope {
			return nil
		}
	}
	return errors.New("insufficient scope")
}

// allow applies the per-client token bucket keyed by remote IP.
func (s *Server) allow(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	s.mu.Lock()
	limiter, ok := s.visitors[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.RateLimitPerMin/60.0), s.cfg.RateLimitBurst)
		s.visitors[host] = limiter
	}
	s.mu.Unlock()
	return limiter.Allow()
}
