package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/norspire/authcore"
)

// Interceptor validates session tokens on incoming gRPC requests.
type Interceptor struct {
	// Issuer validates session tokens. Required.
	Issuer *authcore.AuthSessionIssuer

	// RequireAuth rejects requests without a valid session. When false,
	// requests proceed and UserIDFromContext returns "" for them.
	RequireAuth bool

	// PublicMethods don't require auth even when RequireAuth is set. Keys
	// are full method names like "/package.Service/Method".
	PublicMethods map[string]bool
}

// NewInterceptor returns an interceptor that requires auth everywhere
// except the listed public methods.
func NewInterceptor(issuer *authcore.AuthSessionIssuer, publicMethods ...string) *Interceptor {
	i := &Interceptor{
		Issuer:        issuer,
		RequireAuth:   true,
		PublicMethods: make(map[string]bool),
	}
	for _, method := range publicMethods {
		i.PublicMethods[method] = true
	}
	return i
}

// authenticate resolves the caller, returning the context to continue with.
func (i *Interceptor) authenticate(ctx context.Context, fullMethod string) (context.Context, error) {
	var userID string
	if token := tokenFromMetadata(ctx); token != "" {
		id, err := i.Issuer.Validate(ctx, token)
		if err == nil {
			userID = id
		}
	}

	if userID == "" && i.RequireAuth && !i.PublicMethods[fullMethod] {
		return nil, status.Error(codes.Unauthenticated, "authentication required")
	}
	return withUserID(ctx, userID), nil
}

// Unary returns the unary server interceptor.
func (i *Interceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := i.authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// Stream returns the stream server interceptor.
func (i *Interceptor) Stream() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := i.authenticate(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedStream{ServerStream: ss, ctx: ctx})
	}
}

type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context {
	return w.ctx
}
