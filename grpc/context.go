// Package grpc authenticates gRPC requests with authcore session tokens.
// Tokens travel in the "authorization" metadata entry; the interceptors
// validate them and expose the user ID through the request context.
package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc/metadata"
)

// MetadataKeyAuthorization is the metadata entry carrying the session token.
const MetadataKeyAuthorization = "authorization"

type userIDKey struct{}

// UserIDFromContext returns the authenticated user ID placed on the context
// by the interceptors, or "" for unauthenticated requests.
func UserIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(userIDKey{}).(string)
	return v
}

// IsAuthenticated reports whether the context carries an authenticated user.
func IsAuthenticated(ctx context.Context) bool {
	return UserIDFromContext(ctx) != ""
}

func withUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// TokenToOutgoingContext attaches a session token to an outgoing gRPC call.
func TokenToOutgoingContext(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, MetadataKeyAuthorization, "Bearer "+token)
}

// tokenFromMetadata pulls the first session token out of incoming metadata.
func tokenFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, v := range md.Get(MetadataKeyAuthorization) {
		token := strings.TrimPrefix(v, "Bearer ")
		if token != "" {
			return token
		}
	}
	return ""
}
