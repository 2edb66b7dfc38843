// Package archive transfers GPM images from the remote archive. Requests are
// addressed by the full image URL, credentials included.
package archive

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"
)

// DefaultTimeout bounds every connection attempt to the archive.
const DefaultTimeout = 5 * time.Second

// Client fetches remote files.
type Client interface {
	// Stat returns the size of the remote file. It fails when the archive is
	// unreachable or the file does not exist.
	Stat(ctx context.Context, u *url.URL) (int64, error)
	// Fetch copies the remote file into dst and returns the byte count.
	Fetch(ctx context.Context, u *url.URL, dst io.Writer) (int64, error)
}

// Mux routes requests to a Client by URL scheme.
type Mux struct {
	clients map[string]Client
}

// NewMux returns a Mux serving ftp, http and https with timeout.
func NewMux(timeout time.Duration) *Mux {
	h := NewHTTPClient(timeout)
	return &Mux{clients: map[string]Client{
		"ftp":   NewFTPClient(timeout),
		"http":  h,
		"https": h,
	}}
}

// Handle registers c for scheme, replacing any previous client.
func (m *Mux) Handle(scheme string, c Client) {
	m.clients[scheme] = c
}

func (m *Mux) client(u *url.URL) (Client, error) {
	c, ok := m.clients[u.Scheme]
	if !ok {
		return nil, fmt.Errorf("unsupported archive scheme %q", u.Scheme)
	}
	return c, nil
}

func (m *Mux) Stat(ctx context.Context, u *url.URL) (int64, error) {
	c, err := m.client(u)
	if err != nil {
		return 0, err
	}
	return c.Stat(ctx, u)
}

func (m *Mux) Fetch(ctx context.Context, u *url.URL, dst io.Writer) (int64, error) {
	c, err := m.client(u)
	if err != nil {
		return 0, err
	}
	return c.Fetch(ctx, u, dst)
}
