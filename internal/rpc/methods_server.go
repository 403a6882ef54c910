package rpc

import (
	"encoding/json"
	"time"
)

// pingMethod answers liveness probes.
type pingMethod struct{}

func (m *pingMethod) RequiredRole() Role { return RoleGuest }
func (m *pingMethod) ReadOnly() bool     { return true }

func (m *pingMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	return map[string]any{}, nil
}

// serverInfoMethod reports build and runtime information. It is the
// default method for bare GET requests.
type serverInfoMethod struct {
	server *Server
}

func (m *serverInfoMethod) RequiredRole() Role { return RoleGuest }
func (m *serverInfoMethod) ReadOnly() bool     { return true }

func (m *serverInfoMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	info := map[string]any{
		"version":        m.server.version,
		"uptime_seconds": int64(time.Since(m.server.started).Seconds()),
		"methods":        m.server.registry.List(),
	}
	if m.server.subs != nil {
		info["websocket_clients"] = m.server.subs.ClientCount()
	}
	if m.server.svc != nil {
		stats := m.server.svc.Store().Stats()
		info["store"] = map[string]any{
			"backend":              stats.Backend,
			"puts":                 stats.Puts,
			"gets":                 stats.Gets,
			"queries":              stats.Queries,
			"updates":              stats.Updates,
			"conditional_failures": stats.ConditionalFailures,
			"deletes":              stats.Deletes,
			"scans":                stats.Scans,
		}
	}
	return map[string]any{"info": info}, nil
}

// versionMethod reports the build version.
type versionMethod struct {
	server *Server
}

func (m *versionMethod) RequiredRole() Role { return RoleGuest }
func (m *versionMethod) ReadOnly() bool     { return true }

func (m *versionMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	return map[string]any{"version": m.server.version}, nil
}

// subscribeMethod exists so HTTP callers get a pointed error; stream
// subscriptions live on the WebSocket endpoint.
type subscribeMethod struct{}

func (m *subscribeMethod) RequiredRole() Role { return RoleGuest }
func (m *subscribeMethod) ReadOnly() bool     { return false }

func (m *subscribeMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	return nil, ErrorNotSupported("subscribe is only available via WebSocket connections")
}

type unsubscribeMethod struct{}

func (m *unsubscribeMethod) RequiredRole() Role { return RoleGuest }
func (m *unsubscribeMethod) ReadOnly() bool     { return false }

func (m *unsubscribeMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	return nil, ErrorNotSupported("unsubscribe is only available via WebSocket connections")
}
