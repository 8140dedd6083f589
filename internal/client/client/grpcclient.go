package client

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/accountsync/internal/common"
	"github.com/dmitrijs2005/accountsync/internal/identity"
	pb "github.com/dmitrijs2005/accountsync/internal/proto"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      pb.IdentityServiceClient
	accessToken string
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if s.accessToken != "" {
		ctx = withAccessToken(ctx, s.accessToken)
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

// NewGRPCClient creates a lazily connecting client for endpointURL. token,
// when set, is sent as the API token on every call.
func NewGRPCClient(endpointURL, token string, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, accessToken: token}
	if err := c.InitGRPCClient(opts...); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *GRPCClient) InitGRPCClient(extra ...grpc.DialOption) error {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(s.accessTokenInterceptor),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
	conn, err := grpc.NewClient(s.endpointURL, append(opts, extra...)...)
	if err != nil {
		return err
	}
	s.conn = conn
	s.client = pb.NewIdentityServiceClient(conn)
	return nil
}

func (s *GRPCClient) FindByCredential(ctx context.Context, method identity.LoginMethod, value string) (*identity.Record, error) {
	resp, err := s.client.FindByCredential(ctx, pb.NewLookup(method, value))
	if err != nil {
		return nil, s.mapError(err)
	}

	rec, err := pb.RecordFromStruct(resp)
	if err != nil {
		return nil, &GatewayError{Kind: KindTransport, Err: fmt.Errorf("decode record: %w", err)}
	}
	return rec, nil
}

func (s *GRPCClient) Upsert(ctx context.Context, rec *identity.Record) (*identity.Record, error) {
	resp, err := s.client.Upsert(ctx, pb.RecordToStruct(rec))
	if err != nil {
		return nil, s.mapError(err)
	}

	stored, err := pb.RecordFromStruct(resp)
	if err != nil {
		return nil, &GatewayError{Kind: KindTransport, Err: fmt.Errorf("decode record: %w", err)}
	}
	return stored, nil
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	resp, err := s.client.Ping(ctx, &emptypb.Empty{})
	if err != nil {
		return s.mapError(err)
	}

	if resp.GetValue() != pb.PingOK {
		return &GatewayError{Kind: KindTransport, Err: ErrUnavailable}
	}

	return nil
}

func (s *GRPCClient) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.NotFound:
		return &GatewayError{Kind: KindNotFound, Err: err}
	case codes.Unauthenticated, codes.PermissionDenied:
		return &GatewayError{Kind: KindPermissionDenied, Err: fmt.Errorf("%w: %s", ErrUnauthorized, st.Message())}
	case codes.AlreadyExists:
		ge := &GatewayError{Kind: KindConflict, Err: err}
		for _, d := range st.Details() {
			if f, ok := d.(*wrapperspb.StringValue); ok {
				ge.Field = f.GetValue()
			}
		}
		return ge
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return &GatewayError{Kind: KindTransport, Err: fmt.Errorf("%w: %s", ErrUnavailable, st.Message())}
	default:
		return &GatewayError{Kind: KindTransport, Err: fmt.Errorf("rpc error: %w", err)}
	}
}
