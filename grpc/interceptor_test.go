package grpc

import (
	"context"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/norspire/authcore"
	"github.com/norspire/authcore/stores/memory"
)

func testIssuer(t *testing.T) (*authcore.AuthSessionIssuer, string) {
	t.Helper()
	store := memory.New()
	issuer := authcore.NewAuthSessionIssuer(
		authcore.NewTokenCodec([]byte("test-secret-key-0123456789abcdef"), "test"),
		store,
	)
	user, err := store.CreateUser(context.Background(), authcore.NewUser{Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	token, err := issuer.IssueSession(context.Background(), user)
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	return issuer, token
}

func incomingCtx(token string) context.Context {
	md := metadata.New(nil)
	if token != "" {
		md.Set(MetadataKeyAuthorization, "Bearer "+token)
	}
	return metadata.NewIncomingContext(context.Background(), md)
}

func TestUnaryInterceptorValidToken(t *testing.T) {
	issuer, token := testIssuer(t)
	interceptor := NewInterceptor(issuer)

	var gotUserID string
	handler := func(ctx context.Context, req any) (any, error) {
		gotUserID = UserIDFromContext(ctx)
		return "ok", nil
	}

	resp, err := interceptor.Unary()(incomingCtx(token), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Method"}, handler)
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if resp != "ok" {
		t.Errorf("resp = %v", resp)
	}
	if gotUserID == "" {
		t.Error("user ID not propagated to handler context")
	}
}

func TestUnaryInterceptorMissingToken(t *testing.T) {
	issuer, _ := testIssuer(t)
	interceptor := NewInterceptor(issuer)

	handler := func(ctx context.Context, req any) (any, error) {
		t.Fatal("handler must not run")
		return nil, nil
	}
	_, err := interceptor.Unary()(incomingCtx(""), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Method"}, handler)
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("err = %v, want Unauthenticated", err)
	}
}

func TestUnaryInterceptorBadToken(t *testing.T) {
	issuer, _ := testIssuer(t)
	interceptor := NewInterceptor(issuer)

	_, err := interceptor.Unary()(incomingCtx("not-a-token"), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Method"}, func(ctx context.Context, req any) (any, error) {
		t.Fatal("handler must not run")
		return nil, nil
	})
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("err = %v, want Unauthenticated", err)
	}
}

func TestUnaryInterceptorRevokedSession(t *testing.T) {
	issuer, token := testIssuer(t)
	if err := issuer.Revoke(context.Background(), token); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	interceptor := NewInterceptor(issuer)

	_, err := interceptor.Unary()(incomingCtx(token), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Method"}, func(ctx context.Context, req any) (any, error) {
		t.Fatal("handler must not run")
		return nil, nil
	})
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("err = %v, want Unauthenticated after revocation", err)
	}
}

func TestUnaryInterceptorPublicMethod(t *testing.T) {
	issuer, _ := testIssuer(t)
	interceptor := NewInterceptor(issuer, "/svc/Public")

	var sawUser bool
	handler := func(ctx context.Context, req any) (any, error) {
		sawUser = IsAuthenticated(ctx)
		return "ok", nil
	}
	resp, err := interceptor.Unary()(incomingCtx(""), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Public"}, handler)
	if err != nil {
		t.Fatalf("public method rejected: %v", err)
	}
	if resp != "ok" || sawUser {
		t.Errorf("resp = %v, authenticated = %v", resp, sawUser)
	}
}

func TestOptionalAuth(t *testing.T) {
	issuer, token := testIssuer(t)
	interceptor := &Interceptor{Issuer: issuer}

	var gotUserID string
	handler := func(ctx context.Context, req any) (any, error) {
		gotUserID = UserIDFromContext(ctx)
		return "ok", nil
	}

	if _, err := interceptor.Unary()(incomingCtx(""), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Method"}, handler); err != nil {
		t.Fatalf("optional auth rejected anonymous request: %v", err)
	}
	if gotUserID != "" {
		t.Errorf("anonymous request carried user %q", gotUserID)
	}

	if _, err := interceptor.Unary()(incomingCtx(token), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Method"}, handler); err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if gotUserID == "" {
		t.Error("authenticated request lost its user")
	}
}

type fakeStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (f *fakeStream) Context() context.Context { return f.ctx }

func TestStreamInterceptor(t *testing.T) {
	issuer, token := testIssuer(t)
	interceptor := NewInterceptor(issuer)

	var gotUserID string
	handler := func(srv any, ss grpc.ServerStream) error {
		gotUserID = UserIDFromContext(ss.Context())
		return nil
	}

	stream := &fakeStream{ctx: incomingCtx(token)}
	if err := interceptor.Stream()(nil, stream, &grpc.StreamServerInfo{FullMethod: "/svc/Watch"}, handler); err != nil {
		t.Fatalf("stream interceptor: %v", err)
	}
	if gotUserID == "" {
		t.Error("user ID not propagated to stream context")
	}

	anon := &fakeStream{ctx: incomingCtx("")}
	err := interceptor.Stream()(nil, anon, &grpc.StreamServerInfo{FullMethod: "/svc/Watch"}, handler)
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("err = %v, want Unauthenticated", err)
	}
}

func TestTokenToOutgoingContext(t *testing.T) {
	ctx := TokenToOutgoingContext(context.Background(), "tok-123")
	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		t.Fatal("no outgoing metadata")
	}
	vals := md.Get(MetadataKeyAuthorization)
	if len(vals) != 1 || vals[0] != "Bearer tok-123" {
		t.Errorf("authorization = %v", vals)
	}
}
