package discovery

import (
	"log/slog"
	"time"
)

type settings struct {
	host      string
	startPort uint16
	endPort   uint16
	attempts  uint
	interval  time.Duration
	timeout   time.Duration
	skip      map[uint16]bool
	logger    *slog.Logger
}

type option func(settings) settings

func newSettings(opts []option) settings {
	s := settings{
		host:      "localhost",
		startPort: 9000,
		endPort:   9010,
		attempts:  1,
		interval:  time.Second,
		timeout:   500 * time.Millisecond,
		skip:      map[uint16]bool{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		s = opt(s)
	}
	return s
}

func WithPortRange(startPort, endPort uint16) option {
	return func(s settings) settings {
		s.startPort = startPort
		s.endPort = endPort
		return s
	}
}

func WithPort(port uint16) option {
	return WithPortRange(port, port)
}

// WithAttempts sets how many scans Find runs, interval apart, before giving
// up.
func WithAttempts(attempts uint, interval time.Duration) option {
	return func(s settings) settings {
		s.attempts = attempts
		s.interval = interval
		return s
	}
}

// WithoutPort skips port while scanning, usually the caller's own beacon.
func WithoutPort(port uint16) option {
	return func(s settings) settings {
		skip := make(map[uint16]bool, len(s.skip)+1)
		for p := range s.skip {
			skip[p] = true
		}
		skip[port] = true
		s.skip = skip
		return s
	}
}

func WithLogger(l *slog.Logger) option {
	return func(s settings) settings {
		s.logger = l
		return s
	}
}
