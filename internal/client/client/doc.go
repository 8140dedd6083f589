// Package client contains the client side of the remote identity backend
// plus the local database bootstrap.
//
// # Overview
//
//  1. Gateway is the transport-agnostic contract the login orchestrator and
//     the conflict engine use to reach the remote identity store:
//     FindByCredential, Upsert and Ping.
//  2. GRPCClient implements Gateway over accountsync.v1.IdentityService. It
//     injects an API token via an interceptor and maps gRPC status codes to
//     *GatewayError kinds.
//  3. InitDatabase and NewRepositories open the client SQLite database,
//     apply the embedded goose migrations and wire the repositories.
//
// # Error Handling
//
// Every Gateway failure is a *GatewayError. Use IsNotFound, IsConflict and
// errors.Is(err, ErrUnavailable) to branch; anything that is not NotFound
// is treated by callers as "remote unreachable".
package client
