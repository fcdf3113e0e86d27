// Package endpoint wraps the operating system's sockets in a callback driven
// API: an Endpoint owns one bound socket and runs its own accept (or receive)
// goroutine, and every accepted Connection runs its own reader and writer
// goroutines. Addresses are IPv4 in host order, e.g. 0x7F000001 for 127.0.0.1.
package endpoint

import (
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Mode selects the kind of socket an Endpoint opens.
type Mode int

const (
	// ModeConnection opens a TCP listener and reports accepted connections.
	ModeConnection Mode = iota
	// ModeDatagram opens a UDP socket and reports received packets.
	ModeDatagram
)

func (m Mode) String() string {
	switch m {
	case ModeConnection:
		return "connection"
	case ModeDatagram:
		return "datagram"
	default:
		return "unknown"
	}
}

// AcceptDelegate is called on the accept goroutine for every new connection.
// The connection is idle until Process is called on it.
type AcceptDelegate func(conn *Connection)

// DatagramDelegate is called on the receive goroutine for every packet.
type DatagramDelegate func(address uint32, port uint16, body []byte)

// Config describes what Open binds and where events go.
type Config struct {
	OnAccept   AcceptDelegate
	OnDatagram DatagramDelegate
	Mode       Mode
	// LocalAddress 0 binds the wildcard address.
	LocalAddress uint32
	// GroupAddress, when nonzero in datagram mode, is joined as a multicast group.
	GroupAddress uint32
	// Port 0 asks the OS for an ephemeral port.
	Port uint16
}

var (
	ErrAlreadyOpen       = errors.New("endpoint already open")
	ErrNotOpen           = errors.New("endpoint not open")
	ErrNotConnected      = errors.New("connection not established")
	ErrAlreadyConnected  = errors.New("connection already established")
	ErrAlreadyProcessing = errors.New("connection already processing")
)

const (
	maxDatagramSize = 65535
	maxAcceptDelay  = time.Second
)

// Endpoint is one bound socket. The zero value is not usable; call New.
type Endpoint struct {
	opts options

	mu       sync.Mutex
	listener *net.TCPListener
	packet   *net.UDPConn
	port     uint16
}

// New returns a closed Endpoint. No OS resources are allocated until Open.
func New(opts ...Option) *Endpoint {
	return &Endpoint{opts: buildOptions(opts)}
}

// Open binds the socket described by cfg and starts delivering events.
// It does not block.
func (e *Endpoint) Open(cfg Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listener != nil || e.packet != nil {
		return ErrAlreadyOpen
	}
	switch cfg.Mode {
	case ModeConnection:
		ln, err := net.ListenTCP("tcp4", &net.TCPAddr{IP: IPFromAddress(cfg.LocalAddress), Port: int(cfg.Port)})
		if err != nil {
			return err
		}
		e.listener = ln
		e.port = uint16(ln.Addr().(*net.TCPAddr).Port)
		go e.acceptLoop(ln, cfg.OnAccept)
	case ModeDatagram:
		var (
			pc  *net.UDPConn
			err error
		)
		if cfg.GroupAddress != 0 {
			pc, err = net.ListenMulticastUDP("udp4", nil, &net.UDPAddr{IP: IPFromAddress(cfg.GroupAddress), Port: int(cfg.Port)})
		} else {
			pc, err = net.ListenUDP("udp4", &net.UDPAddr{IP: IPFromAddress(cfg.LocalAddress), Port: int(cfg.Port)})
		}
		if err != nil {
			return err
		}
		e.packet = pc
		e.port = uint16(pc.LocalAddr().(*net.UDPAddr).Port)
		go e.receiveLoop(pc, cfg.OnDatagram)
	default:
		return errors.New("unknown endpoint mode")
	}
	e.opts.log.Debug("endpoint open", zap.Stringer("mode", cfg.Mode), zap.Uint16("port", e.port))
	return nil
}

// BoundPort reports the port actually bound, or 0 when closed.
func (e *Endpoint) BoundPort() uint16 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.port
}

// Close releases the socket. Connections already handed to OnAccept are not
// affected. Safe to call when not open and from inside a delegate.
func (e *Endpoint) Close() {
	e.mu.Lock()
	ln, pc := e.listener, e.packet
	e.listener, e.packet, e.port = nil, nil, 0
	e.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
	if pc != nil {
		_ = pc.Close()
	}
}

// SendPacket sends one datagram. Only valid in datagram mode.
func (e *Endpoint) SendPacket(address uint32, port uint16, body []byte) error {
	e.mu.Lock()
	pc := e.packet
	e.mu.Unlock()
	if pc == nil {
		return ErrNotOpen
	}
	_, err := pc.WriteToUDP(body, &net.UDPAddr{IP: IPFromAddress(address), Port: int(port)})
	return err
}

// current reports whether ln is still the endpoint's listener.
func (e *Endpoint) current(ln *net.TCPListener) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.listener == ln
}

func (e *Endpoint) acceptLoop(ln *net.TCPListener, onAccept AcceptDelegate) {
	var delay time.Duration
	for {
		c, err := ln.AcceptTCP()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			// Same backoff net/http uses for EMFILE and friends.
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else {
				delay *= 2
			}
			if delay > maxAcceptDelay {
				delay = maxAcceptDelay
			}
			e.opts.log.Warn("accept failed", zap.Error(err), zap.Duration("retry_in", delay))
			time.Sleep(delay)
			continue
		}
		delay = 0
		if onAccept == nil || !e.current(ln) {
			_ = c.Close()
			continue
		}
		onAccept(newConnection(c, e.opts))
	}
}

func (e *Endpoint) receiveLoop(pc *net.UDPConn, onDatagram DatagramDelegate) {
	buf := make([]byte, maxDatagramSize)
	for {
		n, from, err := pc.ReadFromUDP(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				e.opts.log.Warn("datagram receive failed", zap.Error(err))
			}
			return
		}
		if onDatagram == nil {
			continue
		}
		body := make([]byte, n)
		copy(body, buf[:n])
		onDatagram(AddressFromIP(from.IP), uint16(from.Port), body)
	}
}

// AddressFromIP converts an IPv4 (or v4-mapped) address to host order.
// Anything else yields 0.
func AddressFromIP(ip net.IP) uint32 {
	v4 := ip.To4()
	if v4 == nil {
		return 0
	}
	return uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3])
}

// IPFromAddress is the inverse of AddressFromIP.
func IPFromAddress(address uint32) net.IP {
	return net.IPv4(byte(address>>24), byte(address>>16), byte(address>>8), byte(address))
}
