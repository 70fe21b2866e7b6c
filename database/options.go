package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultInsertMaxAttempts = 5
	defaultRetryBackoff      = 20 * time.Millisecond
)

type options struct {
	clock        clockwork.Clock
	newID        func() string
	maxAttempts  int
	retryBackoff time.Duration
}

type Option func(*options)

// WithClock sets the clock that stamps CreatedAt.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

func WithIDGenerator(f func() string) Option {
	return func(o *options) { o.newID = f }
}

// WithMaxAttempts bounds how often an aborted insert transaction is retried.
func WithMaxAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

func WithRetryBackoff(d time.Duration) Option {
	return func(o *options) { o.retryBackoff = d }
}

func buildOptions(opts []Option) options {
	o := options{
		clock:        clockwork.NewRealClock(),
		newID:        uuid.NewString,
		maxAttempts:  DefaultInsertMaxAttempts,
		retryBackoff: defaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
