package network

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/luca-patrignani/mental-poker-sync/syncer"
)

// HTTPTransport sends events to an authority over HTTP. It satisfies
// syncer.Transport.
type HTTPTransport struct {
	BaseURL   string
	clock     atomic.Uint64
	client    *http.Client
	tlsConfig *tls.Config
	timeout   time.Duration
	compress  bool
}

// NewHTTPTransport creates a transport for the authority at address, either
// a host:port or a full URL.
func NewHTTPTransport(address string, opts ...Option) *HTTPTransport {
	t := &HTTPTransport{
		BaseURL: address,
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(t)
	}
	if !strings.Contains(t.BaseURL, "://") {
		scheme := "http://"
		if t.tlsConfig != nil {
			scheme = "https://"
		}
		t.BaseURL = scheme + t.BaseURL
	}
	t.BaseURL = strings.TrimSuffix(t.BaseURL, "/")
	if t.timeout > 0 {
		t.client.Timeout = t.timeout
	}
	return t
}

// Send posts payload as event and decodes the acknowledgment. Any status
// other than 200 is an error.
func (t *HTTPTransport) Send(ctx context.Context, event string, payload any) (syncer.Ack, error) {
	body, err := EncodeBody(payload, t.compress)
	if err != nil {
		return syncer.Ack{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL+EventsPath+event, bytes.NewReader(body))
	if err != nil {
		return syncer.Ack{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderClock, fmt.Sprint(t.clock.Add(1)))
	if t.compress {
		req.Header.Set("Content-Encoding", EncodingSnappy)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return syncer.Ack{}, err
	}
	defer resp.Body.Close()
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return syncer.Ack{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return syncer.Ack{}, fmt.Errorf("%s: unexpected status code %d: %s", event, resp.StatusCode, bytes.TrimSpace(content))
	}
	var ack syncer.Ack
	if err := DecodeBody(content, resp.Header.Get("Content-Encoding"), &ack); err != nil {
		return syncer.Ack{}, err
	}
	return ack, nil
}

// Clock returns the sequence number of the last request.
func (t *HTTPTransport) Clock() uint64 {
	return t.clock.Load()
}

// FetchState reads the authoritative snapshot served on GET /state.
func (t *HTTPTransport) FetchState(ctx context.Context) (version int, data map[string]any, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.BaseURL+"/state", nil)
	if err != nil {
		return 0, nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, nil, fmt.Errorf("state: unexpected status code %d", resp.StatusCode)
	}
	var snap struct {
		Version int            `json:"version"`
		Data    map[string]any `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return 0, nil, fmt.Errorf("decoding state: %w", err)
	}
	return snap.Version, snap.Data, nil
}
