package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/accountsync/internal/common"
	pb "github.com/dmitrijs2005/accountsync/internal/proto"
	"github.com/dmitrijs2005/accountsync/internal/server/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

// SubjectKey holds the validated token subject in the handler context.
const SubjectKey ctxKey = "subject"

// openMethods are served without an access token even when the server
// requires one. Lookups return password hashes, so only Ping is open.
var openMethods = map[string]bool{
	pb.IdentityService_Ping_FullMethodName: true,
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {

	if s.requireToken && !openMethods[info.FullMethod] {

		var accessToken string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			values := md.Get(common.AccessTokenHeaderName)
			if len(values) > 0 {
				accessToken = values[0]
			}
		}
		if len(accessToken) == 0 {
			return nil, status.Error(codes.Unauthenticated, "missing token")
		}

		subject, err := auth.ValidateToken(accessToken, s.jwtSecret)
		if err != nil {
			if errors.Is(err, common.ErrTokenExpired) {
				return nil, status.Error(codes.Unauthenticated, "token expired")
			}
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}

		s.logger.Debug(ctx, "authorized call", "subject", subject, "method", info.FullMethod)
		ctx = context.WithValue(ctx, SubjectKey, subject)
	}

	return handler(ctx, req)
}
