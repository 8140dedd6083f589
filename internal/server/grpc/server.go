// Package grpc exposes the identity directory over the
// accountsync.v1.IdentityService gRPC contract.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/accountsync/internal/identity"
	"github.com/dmitrijs2005/accountsync/internal/logging"
	pb "github.com/dmitrijs2005/accountsync/internal/proto"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
)

type identitySvc interface {
	FindByCredential(ctx context.Context, method identity.LoginMethod, value string) (*identity.Record, error)
	Upsert(ctx context.Context, rec *identity.Record) (*identity.Record, error)
}

type GRPCServer struct {
	pb.UnimplementedIdentityServiceServer
	address      string
	identities   identitySvc
	logger       logging.Logger
	jwtSecret    []byte
	requireToken bool
}

func NewGRPCServer(a string, l logging.Logger, is identitySvc, secretKey string, requireToken bool) *GRPCServer {
	return &GRPCServer{
		address:      a,
		logger:       l.With("module", "grpc_server"),
		identities:   is,
		jwtSecret:    []byte(secretKey),
		requireToken: requireToken,
	}
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(s.accessTokenInterceptor),
	)
	pb.RegisterIdentityServiceServer(srv, s)
	return srv
}

// Run listens on the configured address and serves until ctx is done.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis and stops gracefully once ctx is done.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Stopping gRPC server...")
			srv.GracefulStop()
		case <-stopped:
		}
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String(), "require_token", s.requireToken)

	if err := srv.Serve(lis); err != nil {
		return err
	}

	return nil
}
