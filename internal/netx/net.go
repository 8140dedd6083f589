// Package netx contains small network helpers.
package netx

import (
	"context"
	"fmt"
	"net"
	"time"
)

// ProbeTCP reports whether a TCP connection to addr can be opened within
// timeout. The connection is closed immediately.
func ProbeTCP(ctx context.Context, addr string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	return conn.Close()
}
