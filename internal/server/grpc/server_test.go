package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/dmitrijs2005/accountsync/internal/client/client"
	"github.com/dmitrijs2005/accountsync/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (n nopLogger) Debug(context.Context, string, ...any) {}
func (n nopLogger) Info(context.Context, string, ...any)  {}
func (n nopLogger) Warn(context.Context, string, ...any)  {}
func (n nopLogger) Error(context.Context, string, ...any) {}
func (n nopLogger) With(...any) logging.Logger            { return n }

func TestServe_PingOverTCPThenGracefulStop(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewGRPCServer(lis.Addr().String(), nopLogger{}, &fakeIdentities{}, "secret", false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()

	gw, err := client.NewGRPCClient(lis.Addr().String(), "")
	require.NoError(t, err)
	defer gw.Close()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer pingCancel()
	require.NoError(t, gw.Ping(pingCtx))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err, "graceful stop is not an error")
	case <-time.After(2 * time.Second):
		t.Fatal("server still running after cancel")
	}

	_, err = net.DialTimeout("tcp", lis.Addr().String(), 200*time.Millisecond)
	assert.Error(t, err, "listener closed")
}

func TestRun_ListenError(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	srv := NewGRPCServer(busy.Addr().String(), nopLogger{}, &fakeIdentities{}, "secret", false)
	require.Error(t, srv.Run(context.Background()), "address already in use")

	srv = NewGRPCServer("127.0.0.1:99999", nopLogger{}, &fakeIdentities{}, "secret", false)
	require.Error(t, srv.Run(context.Background()), "invalid port")
}
