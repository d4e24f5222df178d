// Package network provides the concrete transports a sync engine talks to
// the remote authority with.
//
// # Core Components
//
// HTTPTransport: posts every event to /events/{event} and reads the
// acknowledgment from the response body. Requests carry a Clock header
// with a per-transport sequence number.
//
// WebSocketTransport: keeps one connection to /ws open and correlates
// acknowledgments with requests by envelope id, so several sends may be in
// flight at once.
//
// # Encoding
//
// Payloads are JSON. With compression enabled, request bodies are snappy
// block encoded and marked with Content-Encoding: snappy; the authority
// answers in the encoding it was sent.
//
// # Security
//
// TLS is configured with WithCertificate and WithLimitedCAs, the same way
// for peers and authority. GenerateSelfSignedCert creates a certificate for
// a given host:port.
package network
