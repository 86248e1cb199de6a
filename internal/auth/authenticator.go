package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/aolus-software/rbac-api/internal"
	"github.com/aolus-software/rbac-api/internal/snapshot"
	"github.com/aolus-software/rbac-api/internal/transport"
	"github.com/aolus-software/rbac-api/pkg/logger"
	"golang.org/x/sync/singleflight"
)

// Authenticator resolves the bearer token into a snapshot bound to the
// request context. Concurrent cache misses for one user share a single rebuild.
type Authenticator struct {
	*transport.BaseHandler
	tokens    TokenGeneratorAPI
	snapshots SnapshotBuilderAPI
	cache     snapshot.Cache
	rebuilds  singleflight.Group
}

func NewAuthenticator(base *transport.BaseHandler, tokens TokenGeneratorAPI, snapshots SnapshotBuilderAPI, cache snapshot.Cache) *Authenticator {
	return &Authenticator{
		BaseHandler: base,
		tokens:      tokens,
		snapshots:   snapshots,
		cache:       cache,
	}
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := a.ExtractTokenFromHeader(r)
		if token == "" {
			a.WriteAppError(w, r, internal.NewUnauthorizedError("Authentication token is missing", internal.ErrCodeMissingToken))
			return
		}

		claims, err := a.tokens.ValidateToken(token)
		if err != nil {
			code := internal.ErrCodeInvalidToken
			if errors.Is(err, ErrTokenExpired) {
				code = internal.ErrCodeTokenExpired
			}
			a.WriteAppError(w, r, internal.NewUnauthorizedError("Invalid or expired token", code))
			return
		}

		snap, err := a.resolve(r.Context(), claims.UserID)
		if err != nil {
			a.WriteAppError(w, r, err)
			return
		}

		ctx := snapshot.WithContext(r.Context(), snap)
		ctx = logger.With(ctx, "userID", snap.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) resolve(ctx context.Context, userID string) (*snapshot.Snapshot, error) {
	log := logger.FromOr(ctx, a.Logger)

	cached, err := a.cache.Get(ctx, userID)
	if err != nil {
		log.WarnContext(ctx, "snapshot cache read failed", "user_id", userID, "error", err)
	}
	if cached != nil {
		return cached, nil
	}

	// The shared rebuild is detached from any one request so a caller that
	// goes away does not fail the others waiting on it.
	detached := context.WithoutCancel(ctx)
	ch := a.rebuilds.DoChan(userID, func() (interface{}, error) {
		gen := a.cache.Generation(userID)
		snap, err := a.snapshots.Build(detached, userID, snapshot.Options{ActiveOnly: true})
		if err != nil {
			return nil, err
		}
		if _, err := a.cache.Fill(detached, snap, gen); err != nil {
			log.WarnContext(detached, "snapshot cache write failed", "user_id", userID, "error", err)
		}
		return snap, nil
	})

	select {
	case <-ctx.Done():
		return nil, internal.NewInternalError("Request cancelled while resolving user", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			if errors.Is(res.Err, snapshot.ErrUserNotFound) {
				return nil, internal.NewUnauthorizedError("User not found or inactive", internal.ErrCodeUserNotFound)
			}
			return nil, internal.NewInternalError("Failed to resolve user", res.Err)
		}
		return res.Val.(*snapshot.Snapshot), nil
	}
}
