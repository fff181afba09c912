package events

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pavel-ixxus/chemistry-cmis/internal/metrics"
	"github.com/pavel-ixxus/chemistry-cmis/pkg/logging"
	"go.uber.org/zap"
)

// RelayBus broadcasts through a websocket relay hub. Inbound envelopes are
// re-dispatched through the local registry; a malformed payload is dropped,
// never fatal. The protocol has no acknowledgement, retry, or ordering
// guard, and a sent message cannot be retracted.
type RelayBus struct {
	registry *Registry
	conn     *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// DialRelay connects to a relay hub and starts the inbound dispatch loop.
func DialRelay(ctx context.Context, relayURL string, r *Registry) (*RelayBus, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, relayURL, nil)
	if err != nil {
		return nil, err
	}

	b := &RelayBus{
		registry: r,
		conn:     conn,
		done:     make(chan struct{}),
	}
	go b.readLoop()
	return b, nil
}

// Broadcast marshals the envelope and writes it to the relay.
func (b *RelayBus) Broadcast(name EventName, param string) error {
	data, err := json.Marshal(Envelope{Name: name, Params: []string{param}})
	if err != nil {
		return err
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	select {
	case <-b.done:
		return nil
	default:
	}
	metrics.RecordBusEvent(string(name), "relay")
	return b.conn.WriteMessage(websocket.TextMessage, data)
}

// Close terminates the relay connection.
func (b *RelayBus) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.done)
		err = b.conn.Close()
	})
	return err
}

func (b *RelayBus) readLoop() {
	for {
		_, data, err := b.conn.ReadMessage()
		if err != nil {
			select {
			case <-b.done:
			default:
				logging.Debug("relay connection closed", zap.Error(err))
			}
			return
		}

		env, err := ParseEnvelope(data)
		if err != nil {
			metrics.RecordDroppedEnvelope()
			logging.Warn("dropping malformed envelope", zap.Error(err))
			continue
		}
		b.registry.Dispatch(env.Name, env.Param())
	}
}

// Relay is the hub side of the message transport: every inbound frame is
// forwarded to all other connections. Origins are not checked; any peer may
// join and frames carry no addressing.
type Relay struct {
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewRelay creates an empty hub.
func NewRelay() *Relay {
	return &Relay{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades the connection and pumps frames until the peer leaves.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		logging.Warn("relay upgrade failed", zap.Error(err))
		return
	}

	r.add(conn)
	defer r.remove(conn)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		r.fanOut(conn, data)
	}
}

// ConnCount returns the number of connected peers.
func (r *Relay) ConnCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

func (r *Relay) add(conn *websocket.Conn) {
	r.mu.Lock()
	r.conns[conn] = struct{}{}
	n := len(r.conns)
	r.mu.Unlock()
	metrics.SetRelayConnectionsActive(int64(n))
}

func (r *Relay) remove(conn *websocket.Conn) {
	r.mu.Lock()
	delete(r.conns, conn)
	n := len(r.conns)
	r.mu.Unlock()
	conn.Close()
	metrics.SetRelayConnectionsActive(int64(n))
}

// fanOut forwards a frame to every connection except the sender. A failed
// write only loses that peer's copy; the message is never re-sent.
func (r *Relay) fanOut(from *websocket.Conn, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for conn := range r.conns {
		if conn == from {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			logging.Debug("relay write failed", zap.Error(err))
		}
	}
}
