package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fanvault/tokend/internal/ledger"
	"github.com/fanvault/tokend/internal/logging"
	"github.com/fanvault/tokend/internal/metrics"
)

// DefaultTimeout bounds one RPC call when the config does not.
const DefaultTimeout = 30 * time.Second

// Config carries the server's operational settings.
type Config struct {
	// Timeout bounds each method call.
	Timeout time.Duration
	// AdminIPs lists client IPs granted the admin role.
	AdminIPs []string
	// Version is reported by server_info and version.
	Version string
}

// Server dispatches JSON-RPC requests over HTTP to the ledger engine.
// Requests are POST bodies {"method": ..., "params": [{...}]}; read-only
// methods also answer GET ?command= queries.
type Server struct {
	registry *MethodRegistry
	svc      *ledger.Service
	log      *logging.Logger
	metrics  *metrics.Metrics
	adminIPs map[string]struct{}
	timeout  time.Duration
	version  string
	started  time.Time
	subs     *SubscriptionManager
}

// NewServer builds the RPC server and registers the full method table.
func NewServer(svc *ledger.Service, cfg Config, log *logging.Logger, m *metrics.Metrics) *Server {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if log == nil {
		log = logging.NewNop()
	}
	if m == nil {
		m = metrics.New(metrics.Config{})
	}

	admin := make(map[string]struct{}, len(cfg.AdminIPs))
	for _, ip := range cfg.AdminIPs {
		admin[ip] = struct{}{}
	}

	s := &Server{
		registry: NewMethodRegistry(),
		svc:      svc,
		log:      log,
		metrics:  m,
		adminIPs: admin,
		timeout:  cfg.Timeout,
		version:  cfg.Version,
		started:  time.Now(),
	}
	s.registerAllMethods()
	return s
}

// AttachSubscriptions lets server_info report live subscriber counts.
func (s *Server) AttachSubscriptions(subs *SubscriptionManager) { s.subs = subs }

// Registry exposes the method table, shared with the WebSocket server.
func (s *Server) Registry() *MethodRegistry { return s.registry }

// roleFor resolves the caller's role from its IP.
func (s *Server) roleFor(clientIP string) Role {
	if _, ok := s.adminIPs[clientIP]; ok {
		return RoleAdmin
	}
	return RoleGuest
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		s.handleGet(w, r)
	case http.MethodPost:
		s.handlePost(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleGet serves read-only queries: GET /?command=balance&userId=u1.
// Query parameters other than command become string params.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	method := query.Get("command")
	if method == "" {
		method = "server_info"
	}

	if handler, ok := s.registry.Get(method); ok && !handler.ReadOnly() {
		s.writeResponse(w, map[string]any{"command": method}, nil,
			ErrorNotSupported(fmt.Sprintf("method %q is not available over GET", method)))
		return
	}

	params := make(map[string]any)
	for key, values := range query {
		if key == "command" || len(values) == 0 {
			continue
		}
		params[key] = values[0]
	}
	var raw json.RawMessage
	if len(params) > 0 {
		raw, _ = json.Marshal(params)
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	clientIP := clientIPOf(r)
	result, rpcErr := s.execute(&Context{Context: ctx, Role: s.roleFor(clientIP), ClientIP: clientIP}, method, raw)
	s.writeResponse(w, map[string]any{"command": method}, result, rpcErr)
}

// handlePost serves the standard JSON-RPC envelope.
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeResponse(w, nil, nil, ErrorInternal("failed to read request body"))
		return
	}
	defer r.Body.Close()

	var request Request
	if err := json.Unmarshal(body, &request); err != nil {
		s.writeResponse(w, nil, nil, NewError(CodeParse, "jsonInvalid", "invalid JSON: "+err.Error()))
		return
	}
	if request.Method == "" {
		s.writeResponse(w, nil, nil, ErrorMissingCommand())
		return
	}

	var params json.RawMessage
	if len(request.Params) > 0 {
		params = request.Params[0]
	}

	// Echo of the request for error responses.
	requestObj := map[string]any{"command": request.Method}
	if params != nil {
		var fields map[string]any
		if err := json.Unmarshal(params, &fields); err == nil {
			for k, v := range fields {
				requestObj[k] = v
			}
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	clientIP := clientIPOf(r)
	result, rpcErr := s.execute(&Context{Context: ctx, Role: s.roleFor(clientIP), ClientIP: clientIP}, request.Method, params)
	s.writeResponse(w, requestObj, result, rpcErr)
}

// execute dispatches one method call, enforcing the role gate and
// recording operation metrics.
func (s *Server) execute(ctx *Context, method string, params json.RawMessage) (any, *Error) {
	handler, ok := s.registry.Get(method)
	if !ok {
		return nil, ErrorMethodNotFound(method)
	}
	if ctx.Role < handler.RequiredRole() {
		s.log.Action("rpc_untrusted",
			zap.String("method", method),
			zap.String("clientIp", ctx.ClientIP))
		return nil, ErrorUntrusted(method)
	}

	started := time.Now()
	result, rpcErr := handler.Handle(ctx, params)
	s.metrics.ObserveOperation(method, time.Since(started))
	if rpcErr != nil {
		s.metrics.RecordOperation(method, rpcErr)
		return nil, rpcErr
	}
	s.metrics.RecordOperation(method, nil)
	return result, nil
}

// writeResponse emits the envelope. Success merges the result object
// with status success; errors carry the name, numeric code, message and
// the request echo inside the result.
func (s *Server) writeResponse(w http.ResponseWriter, request map[string]any, result any, rpcErr *Error) {
	var resultObj map[string]any
	if rpcErr != nil {
		resultObj = map[string]any{
			"status":        "error",
			"error":         rpcErr.ErrorString,
			"error_code":    rpcErr.Code,
			"error_message": rpcErr.Message,
		}
		if request != nil {
			resultObj["request"] = request
		}
	} else {
		resultObj = toObject(result)
		resultObj["status"] = "success"
	}

	payload, err := json.Marshal(map[string]any{"result": resultObj})
	if err != nil {
		s.log.Error("failed to marshal rpc response", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// toObject renders a handler result as a JSON object so status can be
// merged in. Non-object results are wrapped under "data".
func toObject(result any) map[string]any {
	if result == nil {
		return map[string]any{}
	}
	if m, ok := result.(map[string]any); ok {
		return m
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]any{"data": json.RawMessage(raw)}
	}
	return m
}

// clientIPOf extracts the caller's IP, honoring proxy headers.
func clientIPOf(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return strings.Trim(ip, "[]")
}
