package transport

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mithrel/nettransport/internal/endpoint"
	"github.com/mithrel/nettransport/internal/metrics"
)

// networkConnection is the part of *endpoint.Connection the adapter uses.
type networkConnection interface {
	Process(onMessage endpoint.MessageDelegate, onClose endpoint.CloseDelegate) error
	SendMessage(message []byte) bool
	Close(graceful bool)
	PeerAddress() uint32
	PeerPort() uint16
}

type event struct {
	data     []byte
	broken   bool
	graceful bool
}

// connectionAdapter presents a networkConnection as a Connection.
type connectionAdapter struct {
	conn         networkConnection
	log          *zap.Logger
	metrics      *metrics.Metrics
	pendingLimit int

	mu           sync.Mutex
	dataReceived DataReceivedDelegate
	broken       BrokenDelegate
	pending      []event
	pendingBytes int
	delivering   bool
	overflowed   bool
}

var _ Connection = (*connectionAdapter)(nil)

func newConnectionAdapter(conn networkConnection, log *zap.Logger, m *metrics.Metrics, pendingLimit int) *connectionAdapter {
	a := &connectionAdapter{
		conn:         conn,
		metrics:      m,
		pendingLimit: pendingLimit,
	}
	a.log = log.With(
		zap.String("session", uuid.NewString()),
		zap.String("peer", a.PeerID()),
	)
	return a
}

// activate starts event delivery on the underlying connection.
func (a *connectionAdapter) activate() error {
	return a.conn.Process(a.onMessage, a.onClose)
}

func (a *connectionAdapter) onMessage(message []byte) {
	a.metrics.RecordReceived(len(message))
	a.enqueue(event{data: message})
}

func (a *connectionAdapter) onClose(graceful bool) {
	a.metrics.RecordBroken(graceful)
	a.log.Debug("connection broken", zap.Bool("graceful", graceful))
	a.enqueue(event{broken: true, graceful: graceful})
}

func (a *connectionAdapter) enqueue(ev event) {
	a.mu.Lock()
	if !ev.broken {
		if a.overflowed {
			a.mu.Unlock()
			return
		}
		// The cap only applies to data held for a delegate that is not
		// installed yet.
		if a.dataReceived == nil && a.pendingLimit > 0 && a.pendingBytes+len(ev.data) > a.pendingLimit {
			a.overflowed = true
			a.mu.Unlock()
			a.log.Warn("pending data limit exceeded before a data delegate was set; breaking connection",
				zap.Int("limit", a.pendingLimit))
			a.conn.Close(false)
			return
		}
		a.pendingBytes += len(ev.data)
		a.metrics.AddPending(len(ev.data))
	}
	a.pending = append(a.pending, ev)
	a.mu.Unlock()
	a.deliver()
}

// deliver hands queued events to the installed delegates in order. It stops
// at the first event whose delegate is missing; installing that delegate
// resumes delivery. Only one caller delivers at a time.
func (a *connectionAdapter) deliver() {
	a.mu.Lock()
	if a.delivering {
		a.mu.Unlock()
		return
	}
	a.delivering = true
	for len(a.pending) > 0 {
		ev := a.pending[0]
		dataReceived, broken := a.dataReceived, a.broken
		if (ev.broken && broken == nil) || (!ev.broken && dataReceived == nil) {
			break
		}
		a.pending[0] = event{}
		a.pending = a.pending[1:]
		if !ev.broken {
			a.pendingBytes -= len(ev.data)
			a.metrics.AddPending(-len(ev.data))
		}
		a.mu.Unlock()

		if ev.broken {
			broken(ev.graceful)
		} else {
			dataReceived(ev.data)
		}

		a.mu.Lock()
	}
	if len(a.pending) == 0 {
		a.pending = nil
	}
	a.delivering = false
	a.mu.Unlock()
}

func (a *connectionAdapter) PeerID() string {
	return formatPeerID(a.conn.PeerAddress(), a.conn.PeerPort())
}

func (a *connectionAdapter) SetDataReceivedDelegate(delegate DataReceivedDelegate) {
	a.mu.Lock()
	a.dataReceived = delegate
	a.mu.Unlock()
	a.deliver()
}

func (a *connectionAdapter) SetConnectionBrokenDelegate(delegate BrokenDelegate) {
	a.mu.Lock()
	a.broken = delegate
	a.mu.Unlock()
	a.deliver()
}

func (a *connectionAdapter) SendData(data []byte) {
	if a.conn.SendMessage(data) {
		a.metrics.RecordSent(len(data))
	}
}

func (a *connectionAdapter) Break(clean bool) {
	a.log.Debug("breaking connection", zap.Bool("clean", clean))
	a.conn.Close(clean)
}

// formatPeerID renders a host-order IPv4 address and port as "A.B.C.D:port".
func formatPeerID(address uint32, port uint16) string {
	return fmt.Sprintf("%d.%d.%d.%d:%d",
		byte(address>>24),
		byte(address>>16),
		byte(address>>8),
		byte(address),
		port,
	)
}
