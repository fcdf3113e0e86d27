package endpoint

import (
	"time"

	"go.uber.org/zap"
)

const (
	DefaultReadBufferSize = 4096
	DefaultLinger         = 2 * time.Second
	DefaultDialTimeout    = 5 * time.Second
)

type options struct {
	log            *zap.Logger
	readBufferSize int
	linger         time.Duration
	dialTimeout    time.Duration
}

// Option tunes an Endpoint or a Connection.
type Option func(*options)

// WithLogger sets the logger; nil keeps the no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithReadBufferSize caps how many bytes a single message delivery carries.
func WithReadBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.readBufferSize = n
		}
	}
}

// WithLinger bounds how long a graceful close waits for the peer to finish
// after our write side has been shut down.
func WithLinger(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.linger = d
		}
	}
}

// WithDialTimeout bounds Connect.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.dialTimeout = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		log:            zap.NewNop(),
		readBufferSize: DefaultReadBufferSize,
		linger:         DefaultLinger,
		dialTimeout:    DefaultDialTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
