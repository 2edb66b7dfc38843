package archive

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"time"

	"github.com/jlaffaye/ftp"
)

const defaultFTPPort = "21"

// FTPClient reads files over anonymous-style FTP, logging in with the
// credentials carried by the request URL. Each call opens its own control
// connection so calls may run concurrently.
type FTPClient struct {
	timeout time.Duration
}

// NewFTPClient creates an FTP client.
func NewFTPClient(timeout time.Duration) *FTPClient {
	return &FTPClient{timeout: timeout}
}

func (c *FTPClient) dial(ctx context.Context, u *url.URL) (*ftp.ServerConn, error) {
	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), defaultFTPPort)
	}

	conn, err := ftp.Dial(addr,
		ftp.DialWithTimeout(c.timeout),
		ftp.DialWithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("ftp dial %s: %w", addr, err)
	}

	user := u.User.Username()
	pass, _ := u.User.Password()
	if err := conn.Login(user, pass); err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("ftp login: %w", err)
	}
	return conn, nil
}

func (c *FTPClient) Stat(ctx context.Context, u *url.URL) (int64, error) {
	conn, err := c.dial(ctx, u)
	if err != nil {
		return 0, err
	}
	defer conn.Quit() //nolint:errcheck

	size, err := conn.FileSize(u.Path)
	if err != nil {
		return 0, fmt.Errorf("ftp size %s: %w", u.Path, err)
	}
	return size, nil
}

func (c *FTPClient) Fetch(ctx context.Context, u *url.URL, dst io.Writer) (int64, error) {
	conn, err := c.dial(ctx, u)
	if err != nil {
		return 0, err
	}
	defer conn.Quit() //nolint:errcheck

	// Servers without SIZE still transfer; only the length check is skipped.
	size, sizeErr := conn.FileSize(u.Path)

	resp, err := conn.Retr(u.Path)
	if err != nil {
		return 0, fmt.Errorf("ftp retr %s: %w", u.Path, err)
	}

	n, err := io.Copy(dst, resp)
	// Close reads the final reply; an aborted transfer (426/451) only
	// surfaces here.
	if closeErr := resp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return n, fmt.Errorf("ftp transfer %s: %w", u.Path, err)
	}
	if sizeErr == nil && n != size {
		return n, fmt.Errorf("ftp transfer %s: got %d of %d bytes", u.Path, n, size)
	}
	return n, nil
}
