package transport

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mithrel/nettransport/internal/endpoint"
	"github.com/mithrel/nettransport/internal/logging"
	"github.com/mithrel/nettransport/internal/metrics"
)

// DefaultPendingLimit bounds the bytes a connection holds while its data
// delegate is unset.
const DefaultPendingLimit = 1 << 20

// Option configures a ServerNetworkTransport.
type Option func(*ServerNetworkTransport)

// WithLogger sets the logger used by the transport and its connections.
func WithLogger(l *zap.Logger) Option {
	return func(t *ServerNetworkTransport) { t.log = logging.OrNop(l) }
}

// WithMetrics records connection and traffic metrics in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *ServerNetworkTransport) { t.metrics = m }
}

// WithPendingLimit overrides DefaultPendingLimit. Zero or less disables the
// limit.
func WithPendingLimit(n int) Option {
	return func(t *ServerNetworkTransport) { t.pendingLimit = n }
}

// WithReadBufferSize caps the size of a single data delivery.
func WithReadBufferSize(n int) Option {
	return func(t *ServerNetworkTransport) { t.readBufferSize = n }
}

// ServerNetworkTransport is a ServerTransport backed by a TCP endpoint on the
// wildcard IPv4 address. It must not be copied after first use.
type ServerNetworkTransport struct {
	log            *zap.Logger
	metrics        *metrics.Metrics
	pendingLimit   int
	readBufferSize int

	mu       sync.Mutex
	endpoint *endpoint.Endpoint
}

var _ ServerTransport = (*ServerNetworkTransport)(nil)

// New returns an unbound transport. No OS resources are allocated until
// BindNetwork.
func New(opts ...Option) *ServerNetworkTransport {
	t := &ServerNetworkTransport{
		log:            zap.NewNop(),
		pendingLimit:   DefaultPendingLimit,
		readBufferSize: endpoint.DefaultReadBufferSize,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// BindNetwork implements ServerTransport. Binding an already bound transport
// fails with ErrAlreadyBound and leaves the current binding in place.
func (t *ServerNetworkTransport) BindNetwork(port uint16, onNewConnection NewConnectionDelegate) error {
	if onNewConnection == nil {
		return ErrNilDelegate
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.endpoint != nil {
		return ErrAlreadyBound
	}

	ep := endpoint.New(
		endpoint.WithLogger(t.log),
		endpoint.WithReadBufferSize(t.readBufferSize),
	)
	err := ep.Open(endpoint.Config{
		Mode: endpoint.ModeConnection,
		Port: port,
		OnAccept: func(conn *endpoint.Connection) {
			t.accept(conn, onNewConnection)
		},
		OnDatagram: func(address uint32, port uint16, body []byte) {
			// Connection mode never delivers datagrams.
			t.log.Warn("unexpected datagram on connection endpoint",
				zap.String("from", formatPeerID(address, port)),
				zap.Int("bytes", len(body)))
		},
	})
	if err != nil {
		t.log.Error("bind network failed", zap.Uint16("port", port), zap.Error(err))
		return fmt.Errorf("%w: port %d: %w", ErrBindFailed, port, err)
	}
	t.endpoint = ep
	t.log.Info("network bound", zap.Uint16("port", ep.BoundPort()))
	return nil
}

// accept runs on the endpoint's accept goroutine for every new connection.
func (t *ServerNetworkTransport) accept(conn networkConnection, onNewConnection NewConnectionDelegate) {
	adapter := newConnectionAdapter(conn, t.log, t.metrics, t.pendingLimit)
	if err := adapter.activate(); err != nil {
		t.metrics.RecordActivationFailure()
		adapter.log.Debug("dropping connection that could not start processing", zap.Error(err))
		conn.Close(false)
		return
	}
	t.metrics.RecordAccept()
	adapter.log.Debug("connection accepted")
	onNewConnection(adapter)
}

// BoundPort implements ServerTransport.
func (t *ServerNetworkTransport) BoundPort() uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.endpoint == nil {
		return 0
	}
	return t.endpoint.BoundPort()
}

// ReleaseNetwork implements ServerTransport. It is safe to call when unbound.
func (t *ServerNetworkTransport) ReleaseNetwork() {
	t.mu.Lock()
	ep := t.endpoint
	t.endpoint = nil
	t.mu.Unlock()
	if ep == nil {
		return
	}
	port := ep.BoundPort()
	ep.Close()
	t.log.Info("network released", zap.Uint16("port", port))
}
