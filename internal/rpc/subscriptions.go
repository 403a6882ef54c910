package rpc

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fanvault/tokend/internal/logging"
	"github.com/fanvault/tokend/internal/metrics"
)

// Stream names clients can subscribe to.
const (
	StreamTransactions = "transactions"
	StreamHolds        = "holds"
	StreamSweeps       = "sweeps"
	StreamAccounts     = "accounts"
)

// sendBufferSize is each connection's outbound queue. A client that
// falls this far behind is disconnected rather than allowed to stall
// the broadcasters.
const sendBufferSize = 256

var validStreams = map[string]struct{}{
	StreamTransactions: {},
	StreamHolds:        {},
	StreamSweeps:       {},
	StreamAccounts:     {},
}

// Connection is one subscriber's registration: its stream and account
// interests plus the outbound queue drained by its write pump.
type Connection struct {
	ID string

	send   chan []byte
	done   chan struct{}
	closer sync.Once

	mu       sync.Mutex
	streams  map[string]struct{}
	accounts map[string]struct{}
}

func newConnection(id string) *Connection {
	return &Connection{
		ID:       id,
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
		streams:  make(map[string]struct{}),
		accounts: make(map[string]struct{}),
	}
}

// Subscribe adds stream and account interests. Unknown stream names are
// rejected; account interests imply the accounts stream.
func (c *Connection) Subscribe(streams, accounts []string) error {
	for _, name := range streams {
		if _, ok := validStreams[name]; !ok {
			return fmt.Errorf("unknown stream %q", name)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range streams {
		c.streams[name] = struct{}{}
	}
	for _, id := range accounts {
		if id != "" {
			c.accounts[id] = struct{}{}
		}
	}
	return nil
}

// Unsubscribe removes stream and account interests.
func (c *Connection) Unsubscribe(streams, accounts []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range streams {
		delete(c.streams, name)
	}
	for _, id := range accounts {
		delete(c.accounts, id)
	}
}

func (c *Connection) subscribedTo(stream string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.streams[stream]
	return ok
}

// watchesAccount reports whether any of ids is in the connection's
// account set.
func (c *Connection) watchesAccount(ids ...string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		if _, ok := c.accounts[id]; ok {
			return true
		}
	}
	return false
}

// enqueue offers a payload without blocking. False means the buffer is
// full and the caller should disconnect the client.
func (c *Connection) enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return true
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Close marks the connection finished. Idempotent.
func (c *Connection) Close() {
	c.closer.Do(func() { close(c.done) })
}

// Done is closed when the connection should shut down.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Outbound is the queue the write pump drains.
func (c *Connection) Outbound() <-chan []byte { return c.send }

// SubscriptionManager tracks live subscriber connections and fans
// events out to them. Broadcasts never block: a subscriber whose queue
// is full is closed.
type SubscriptionManager struct {
	mu      sync.RWMutex
	conns   map[string]*Connection
	log     *logging.Logger
	metrics *metrics.Metrics
}

func NewSubscriptionManager(log *logging.Logger, m *metrics.Metrics) *SubscriptionManager {
	if log == nil {
		log = logging.NewNop()
	}
	if m == nil {
		m = metrics.New(metrics.Config{})
	}
	return &SubscriptionManager{
		conns:   make(map[string]*Connection),
		log:     log,
		metrics: m,
	}
}

// Add registers a connection.
func (sm *SubscriptionManager) Add(conn *Connection) {
	sm.mu.Lock()
	sm.conns[conn.ID] = conn
	count := len(sm.conns)
	sm.mu.Unlock()
	sm.metrics.SetWebsocketClients(count)
	sm.log.Debug("subscriber connected", zap.String("connId", conn.ID), zap.Int("clients", count))
}

// Remove unregisters a connection and closes it.
func (sm *SubscriptionManager) Remove(id string) {
	sm.mu.Lock()
	conn, ok := sm.conns[id]
	if ok {
		delete(sm.conns, id)
	}
	count := len(sm.conns)
	sm.mu.Unlock()
	if !ok {
		return
	}
	conn.Close()
	sm.metrics.SetWebsocketClients(count)
	sm.log.Debug("subscriber disconnected", zap.String("connId", id), zap.Int("clients", count))
}

// ClientCount returns the number of live connections.
func (sm *SubscriptionManager) ClientCount() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.conns)
}

// BroadcastToStream delivers payload to every subscriber of stream.
func (sm *SubscriptionManager) BroadcastToStream(stream string, payload []byte) {
	sm.broadcast(payload, func(c *Connection) bool { return c.subscribedTo(stream) })
}

// BroadcastToAccounts delivers payload to every subscriber watching any
// of the account ids.
func (sm *SubscriptionManager) BroadcastToAccounts(payload []byte, accountIDs ...string) {
	sm.broadcast(payload, func(c *Connection) bool { return c.watchesAccount(accountIDs...) })
}

func (sm *SubscriptionManager) broadcast(payload []byte, want func(*Connection) bool) {
	sm.mu.RLock()
	targets := make([]*Connection, 0, len(sm.conns))
	for _, conn := range sm.conns {
		if want(conn) {
			targets = append(targets, conn)
		}
	}
	sm.mu.RUnlock()

	for _, conn := range targets {
		if !conn.enqueue(payload) {
			sm.log.Warn("subscriber queue full, disconnecting",
				zap.String("connId", conn.ID))
			sm.Remove(conn.ID)
		}
	}
}

// CloseAll disconnects every subscriber, for server shutdown.
func (sm *SubscriptionManager) CloseAll() {
	sm.mu.Lock()
	conns := make([]*Connection, 0, len(sm.conns))
	for _, conn := range sm.conns {
		conns = append(conns, conn)
	}
	sm.conns = make(map[string]*Connection)
	sm.mu.Unlock()
	for _, conn := range conns {
		conn.Close()
	}
	sm.metrics.SetWebsocketClients(0)
}
