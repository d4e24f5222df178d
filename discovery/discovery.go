// Package discovery lets clients on the same host find a running authority.
// An authority advertises itself on the first free port of a port range;
// clients scan the range and collect the announcements.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Entry is what an authority advertises.
type Entry struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Beacon serves an Entry until closed.
type Beacon struct {
	Port   uint16
	server *http.Server
}

type handler struct {
	entry []byte
}

func (h handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(h.entry)
}

// Advertise serves e on the first free port of the configured range.
func Advertise(e Entry, opts ...option) (*Beacon, error) {
	s := newSettings(opts)
	body, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}

	var l net.Listener
	var port uint16
	for port = s.startPort; port <= s.endPort && port >= s.startPort; port++ {
		l, err = net.Listen("tcp", fmt.Sprintf("%s:%d", s.host, port))
		if err == nil {
			break
		}
	}
	if l == nil {
		return nil, fmt.Errorf("no free port in %d-%d: %w", s.startPort, s.endPort, err)
	}

	b := &Beacon{
		Port:   port,
		server: &http.Server{Handler: handler{entry: body}},
	}
	go func() {
		if err := b.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("discovery beacon stopped", "port", port, "error", err)
		}
	}()
	s.logger.Debug("advertising", "name", e.Name, "url", e.URL, "port", port)
	return b, nil
}

func (b *Beacon) Close() error {
	return b.server.Shutdown(context.Background())
}

// Find scans the port range up to the configured number of attempts and
// returns the entries of the first attempt that found any. Ports in the
// skip list are not scanned.
func Find(ctx context.Context, opts ...option) ([]Entry, error) {
	s := newSettings(opts)
	client := http.Client{Timeout: s.timeout}
	for attempt := uint(0); attempt < s.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(s.interval):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if entries := s.search(ctx, &client); len(entries) > 0 {
			return entries, nil
		}
	}
	return nil, nil
}

func (s settings) search(ctx context.Context, client *http.Client) []Entry {
	var entries []Entry
	for port := s.startPort; port <= s.endPort && port >= s.startPort; port++ {
		if s.skip[port] {
			continue
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://%s:%d", s.host, port), nil)
		if err != nil {
			continue
		}
		resp, err := client.Do(req)
		if err != nil {
			continue
		}
		var e Entry
		err = json.NewDecoder(resp.Body).Decode(&e)
		resp.Body.Close()
		if err != nil {
			s.logger.Debug("ignoring non-discovery listener", "port", port, "error", err)
			continue
		}
		entries = append(entries, e)
	}
	return entries
}
