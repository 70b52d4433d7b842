package database

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
)

const sessionKey = TxContextKey("session-context-key")

// Session pins one pooled connection for the lifetime of an import run.
type Session struct {
	conn *sqlx.Conn
}

func sessionFromContext(ctx context.Context) *Session {
	s, ok := ctx.Value(sessionKey).(*Session)
	if !ok {
		return nil
	}
	return s
}

// OpenSession checks out a dedicated connection and stores it in the returned context. The
// release func must be called on every exit path; calling it more than once is safe.
func OpenSession(ctx context.Context, logger ectologger.Logger, db DB) (context.Context, func(), error) {
	if s := sessionFromContext(ctx); s != nil {
		return ctx, func() {}, nil
	}

	conn, err := db.Connx(ctx)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Error("failed to open storage session")
		return ctx, func() {}, fmt.Errorf("storage session unavailable: %w", err)
	}

	released := false
	release := func() {
		if released {
			return
		}
		released = true
		if err := conn.Close(); err != nil {
			logger.WithContext(ctx).WithError(err).Warn("failed to release storage session")
		}
	}

	return context.WithValue(ctx, sessionKey, &Session{conn: conn}), release, nil
}
