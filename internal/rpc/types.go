package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// Request is the JSON-RPC envelope: a method name and a single-element
// params array holding one object.
type Request struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params,omitempty"`
}

// Role gates access to methods. Admin is granted by client IP.
type Role int

const (
	RoleGuest Role = iota
	RoleAdmin
)

// Context carries request-scoped information into method handlers.
type Context struct {
	context.Context
	Role     Role
	ClientIP string
}

// IsAdmin reports whether the caller holds the admin role.
func (c *Context) IsAdmin() bool { return c.Role >= RoleAdmin }

// MethodHandler is implemented by every RPC method. ReadOnly methods are
// additionally reachable through GET ?command= requests.
type MethodHandler interface {
	Handle(ctx *Context, params json.RawMessage) (any, *Error)
	RequiredRole() Role
	ReadOnly() bool
}

// MethodRegistry maps method names to handlers.
type MethodRegistry struct {
	mu      sync.RWMutex
	methods map[string]MethodHandler
}

func NewMethodRegistry() *MethodRegistry {
	return &MethodRegistry{methods: make(map[string]MethodHandler)}
}

func (r *MethodRegistry) Register(name string, handler MethodHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods[name] = handler
}

func (r *MethodRegistry) Get(name string) (MethodHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.methods[name]
	return handler, ok
}

// List returns the registered method names, sorted.
func (r *MethodRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// decodeParams unmarshals the params object into v. Absent params leave
// v at its zero value; malformed JSON is an invalidParams error.
func decodeParams(params json.RawMessage, v any) *Error {
	if len(params) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(params))
	if err := dec.Decode(v); err != nil {
		return ErrorInvalidParams("invalid parameters: " + err.Error())
	}
	return nil
}

// flexInt64 decodes from a JSON number or a quoted number, so numeric
// parameters survive the GET ?command= path where every value arrives
// as a string.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid number %q", s)
		}
		*f = flexInt64(n)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexInt64(n)
	return nil
}

// flexBool decodes from a JSON bool or the strings "true"/"false".
type flexBool struct {
	set   bool
	value bool
}

func (f *flexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		b, err := strconv.ParseBool(s)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", s)
		}
		f.set, f.value = true, b
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err != nil {
		return err
	}
	f.set, f.value = true, b
	return nil
}

// Or returns the decoded value, or def when the field was absent.
func (f flexBool) Or(def bool) bool {
	if f.set {
		return f.value
	}
	return def
}
