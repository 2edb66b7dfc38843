package archive

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

// HTTPClient reads files from an HTTP(S) mirror of the archive using basic
// auth taken from the request URL.
type HTTPClient struct {
	httpClient *http.Client
}

// NewHTTPClient creates an HTTP archive client.
func NewHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           (&net.Dialer{Timeout: timeout}).DialContext,
				ResponseHeaderTimeout: timeout,
				TLSHandshakeTimeout:   timeout,
			},
		},
	}
}

func (c *HTTPClient) do(ctx context.Context, method string, u *url.URL) (*http.Response, error) {
	target := *u
	target.User = nil

	req, err := http.NewRequestWithContext(ctx, method, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if u.User != nil {
		pass, _ := u.User.Password()
		req.SetBasicAuth(u.User.Username(), pass)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("archive error: status %d: %s", resp.StatusCode, body)
	}
	return resp, nil
}

func (c *HTTPClient) Stat(ctx context.Context, u *url.URL) (int64, error) {
	resp, err := c.do(ctx, http.MethodHead, u)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.ContentLength, nil
}

func (c *HTTPClient) Fetch(ctx context.Context, u *url.URL, dst io.Writer) (int64, error) {
	resp, err := c.do(ctx, http.MethodGet, u)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(dst, resp.Body)
	if err != nil {
		return n, fmt.Errorf("read body: %w", err)
	}
	return n, nil
}
