package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/accountsync/internal/common"
	pb "github.com/dmitrijs2005/accountsync/internal/proto"
	"github.com/dmitrijs2005/accountsync/internal/server/repositories/identities"
	"github.com/dmitrijs2005/accountsync/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func (s *GRPCServer) FindByCredential(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	method, value, err := pb.ParseLookup(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	rec, err := s.identities.FindByCredential(ctx, method, value)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return pb.RecordToStruct(rec), nil
}

func (s *GRPCServer) Upsert(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	rec, err := pb.RecordFromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	stored, err := s.identities.Upsert(ctx, rec)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return pb.RecordToStruct(stored), nil
}

func (s *GRPCServer) Ping(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return wrapperspb.String(pb.PingOK), nil
}

// toStatus maps service errors to gRPC statuses. A conflict carries the
// colliding field as a StringValue detail.
func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	var ce *identities.ConflictError
	switch {
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.As(err, &ce):
		st := status.New(codes.AlreadyExists, ce.Error())
		if ce.Field != "" {
			if withField, derr := st.WithDetails(wrapperspb.String(ce.Field)); derr == nil {
				st = withField
			}
		}
		return st.Err()
	case errors.Is(err, services.ErrInvalidRecord):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		s.logger.Error(ctx, err.Error())
		return status.Error(codes.Internal, "internal error")
	}
}
