package pipeline

import (
	"context"

	"aegis/internal/policy"
	"aegis/internal/risk"
	"aegis/internal/session"
)

type (
	sessionCtxKey struct{}
	profileCtxKey struct{}
	inputCtxKey   struct{}
)

// SessionFromContext returns the live session the pipeline attached, or nil.
func SessionFromContext(ctx context.Context) *session.Session {
	if s, ok := ctx.Value(sessionCtxKey{}).(*session.Session); ok {
		return s
	}
	return nil
}

// ProfileFromContext returns the risk evaluation for this request.
func ProfileFromContext(ctx context.Context) (risk.Profile, bool) {
	p, ok := ctx.Value(profileCtxKey{}).(risk.Profile)
	return p, ok
}

// InputFromContext returns the policy input built for this request.
func InputFromContext(ctx context.Context) (policy.Input, bool) {
	in, ok := ctx.Value(inputCtxKey{}).(policy.Input)
	return in, ok
}

// NewContext attaches everything the middleware would. Handler tests use it
// to exercise protected endpoints without running the full chain.
func NewContext(ctx context.Context, s *session.Session, p risk.Profile, in policy.Input) context.Context {
	ctx = withSession(ctx, s)
	ctx = withProfile(ctx, p)
	return withInput(ctx, in)
}

func withSession(ctx context.Context, s *session.Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey{}, s)
}

func withProfile(ctx context.Context, p risk.Profile) context.Context {
	return context.WithValue(ctx, profileCtxKey{}, p)
}

func withInput(ctx context.Context, in policy.Input) context.Context {
	return context.WithValue(ctx, inputCtxKey{}, in)
}
