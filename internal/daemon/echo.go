package daemon

import (
	"bytes"

	"go.uber.org/zap"

	"github.com/mithrel/nettransport/internal/transport"
)

// maxLine bounds how much of an unterminated line is kept for quit detection.
const maxLine = 1024

var quitCommand = []byte("quit")

// Echo returns a connection delegate that sends every received chunk back to
// the peer. A line consisting of "quit" is echoed up to its newline, then the
// connection is closed cleanly once the echo has been flushed.
func Echo(log *zap.Logger) transport.NewConnectionDelegate {
	return func(conn transport.Connection) {
		s := &echoSession{conn: conn, log: log.With(zap.String("peer", conn.PeerID()))}
		conn.SetConnectionBrokenDelegate(s.onBroken)
		conn.SetDataReceivedDelegate(s.onData)
		s.log.Debug("echo session started")
	}
}

// echoSession is driven by one connection's delegates, which never run
// concurrently, so it needs no lock.
type echoSession struct {
	conn     transport.Connection
	log      *zap.Logger
	line     []byte
	overlong bool
	quit     bool
}

func (s *echoSession) onData(data []byte) {
	if s.quit {
		return
	}
	for i, b := range data {
		if b != '\n' {
			if len(s.line) < maxLine {
				s.line = append(s.line, b)
			} else {
				s.overlong = true
			}
			continue
		}
		isQuit := !s.overlong && bytes.Equal(bytes.TrimSuffix(s.line, []byte("\r")), quitCommand)
		s.line, s.overlong = s.line[:0], false
		if isQuit {
			// Nothing after the quit line is echoed.
			s.quit = true
			s.conn.SendData(data[:i+1])
			s.log.Debug("peer asked to quit")
			s.conn.Break(true)
			return
		}
	}
	s.conn.SendData(data)
}

func (s *echoSession) onBroken(graceful bool) {
	s.log.Debug("echo session ended", zap.Bool("graceful", graceful))
}
