package endpoint

import (
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MessageDelegate receives every chunk read from the peer. The slice is owned
// by the callee.
type MessageDelegate func(message []byte)

// CloseDelegate is called exactly once when a processed connection ends.
type CloseDelegate func(graceful bool)

type connState int

const (
	stateIdle connState = iota
	stateOpen
	stateClosing
	stateClosed
)

type closeKind int

const (
	closeUnknown closeKind = iota
	closeGraceful
	closeAbrupt
)

// Connection is one TCP connection, either accepted by an Endpoint or
// established with Connect. Events start flowing once Process is called:
// message and close callbacks run sequentially on the connection's reader
// goroutine, while a separate writer goroutine drains SendMessage's queue.
type Connection struct {
	opts options

	mu         sync.Mutex
	cond       *sync.Cond
	conn       *net.TCPConn
	state      connState
	processing bool
	outbound   [][]byte
	kind       closeKind
	writerDone chan struct{}

	peerAddress uint32
	peerPort    uint16
	boundPort   uint16
}

// NewConnection returns an unconnected client connection.
func NewConnection(opts ...Option) *Connection {
	c := &Connection{opts: buildOptions(opts)}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func newConnection(tc *net.TCPConn, opts options) *Connection {
	c := &Connection{opts: opts}
	c.cond = sync.NewCond(&c.mu)
	c.attach(tc)
	return c
}

func (c *Connection) attach(tc *net.TCPConn) {
	c.conn = tc
	c.state = stateOpen
	if ra, ok := tc.RemoteAddr().(*net.TCPAddr); ok {
		c.peerAddress = AddressFromIP(ra.IP)
		c.peerPort = uint16(ra.Port)
	}
	if la, ok := tc.LocalAddr().(*net.TCPAddr); ok {
		c.boundPort = uint16(la.Port)
	}
}

// Connect dials address:port. It blocks until connected or the dial timeout
// expires.
func (c *Connection) Connect(address uint32, port uint16) error {
	c.mu.Lock()
	if c.state != stateIdle {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.mu.Unlock()

	d := net.Dialer{Timeout: c.opts.dialTimeout}
	nc, err := d.Dial("tcp4", net.JoinHostPort(IPFromAddress(address).String(), strconv.Itoa(int(port))))
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateIdle {
		_ = nc.Close()
		return ErrAlreadyConnected
	}
	c.attach(nc.(*net.TCPConn))
	return nil
}

// Process starts event delivery. It may be called once.
func (c *Connection) Process(onMessage MessageDelegate, onClose CloseDelegate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.processing {
		return ErrAlreadyProcessing
	}
	if c.state != stateOpen {
		return ErrNotConnected
	}
	c.processing = true
	c.writerDone = make(chan struct{})
	go c.readLoop(onMessage, onClose)
	go c.writeLoop()
	return nil
}

// SendMessage queues message for the writer goroutine and returns at once.
// It reports whether the message was queued: messages sent once the
// connection is closing are dropped. Write errors surface through the close
// delegate.
func (c *Connection) SendMessage(message []byte) bool {
	if len(message) == 0 {
		return true
	}
	buf := append([]byte(nil), message...)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateOpen {
		return false
	}
	c.outbound = append(c.outbound, buf)
	c.cond.Signal()
	return true
}

// Close ends the connection. A graceful close writes everything already
// queued, shuts down our write side and waits up to the linger time for the
// peer to finish. An abrupt close drops the queue and closes immediately.
func (c *Connection) Close(graceful bool) {
	c.mu.Lock()
	// An abrupt close may still cut short a graceful one in progress.
	if c.state == stateClosed || c.state == stateIdle || (c.state == stateClosing && graceful) {
		c.mu.Unlock()
		return
	}
	if !graceful {
		c.mu.Unlock()
		c.abort(closeAbrupt)
		return
	}
	if c.processing {
		c.state = stateClosing
		c.cond.Broadcast()
		c.mu.Unlock()
		return
	}
	pending := c.outbound
	c.outbound = nil
	c.state = stateClosed
	c.kind = closeGraceful
	c.mu.Unlock()

	for _, msg := range pending {
		if _, err := c.conn.Write(msg); err != nil {
			break
		}
	}
	_ = c.conn.Close()
}

// PeerAddress is the remote IPv4 address in host order.
func (c *Connection) PeerAddress() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerAddress
}

// PeerPort is the remote TCP port.
func (c *Connection) PeerPort() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerPort
}

// BoundPort is the local TCP port.
func (c *Connection) BoundPort() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.boundPort
}

func (c *Connection) readLoop(onMessage MessageDelegate, onClose CloseDelegate) {
	buf := make([]byte, c.opts.readBufferSize)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 && onMessage != nil {
			msg := make([]byte, n)
			copy(msg, buf[:n])
			onMessage(msg)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				// The peer is done writing but may still read: flush what
				// is already queued before the socket goes away.
				c.drainAfterPeerEOF()
				c.abort(closeGraceful)
			} else {
				c.abort(closeAbrupt)
			}

			c.mu.Lock()
			graceful := c.kind == closeGraceful
			c.mu.Unlock()
			c.opts.log.Debug("connection closed",
				zap.Uint16("peer_port", c.peerPort),
				zap.Bool("graceful", graceful),
				zap.Error(err))
			if onClose != nil {
				onClose(graceful)
			}
			return
		}
	}
}

func (c *Connection) writeLoop() {
	defer close(c.writerDone)
	for {
		c.mu.Lock()
		for len(c.outbound) == 0 && c.state == stateOpen {
			c.cond.Wait()
		}
		batch := c.outbound
		c.outbound = nil
		state := c.state
		c.mu.Unlock()

		if state == stateClosed {
			return
		}
		for _, msg := range batch {
			if _, err := c.conn.Write(msg); err != nil {
				c.opts.log.Debug("write failed", zap.Error(err))
				c.abort(closeAbrupt)
				return
			}
		}
		if state == stateClosing && len(batch) == 0 {
			c.finishGraceful()
			return
		}
	}
}

// drainAfterPeerEOF stops accepting new messages and waits for the writer
// goroutine to flush the queue and shut down our write side.
func (c *Connection) drainAfterPeerEOF() {
	c.mu.Lock()
	if c.state == stateOpen {
		c.state = stateClosing
		c.cond.Broadcast()
	}
	c.mu.Unlock()
	<-c.writerDone
}

// finishGraceful runs once the outbound queue is drained after a graceful
// Close. The reader goroutine observes the peer's EOF (or the linger
// deadline) and reports the close.
func (c *Connection) finishGraceful() {
	c.mu.Lock()
	if c.kind == closeUnknown {
		c.kind = closeGraceful
	}
	c.mu.Unlock()
	_ = c.conn.CloseWrite()
	_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.linger))
}

// abort records why the connection ended (first reason wins) and releases
// the socket, which also unblocks the reader goroutine.
func (c *Connection) abort(kind closeKind) {
	c.mu.Lock()
	if c.kind == closeUnknown {
		c.kind = kind
	}
	c.state = stateClosed
	c.outbound = nil
	c.cond.Broadcast()
	c.mu.Unlock()
	_ = c.conn.Close()
}
