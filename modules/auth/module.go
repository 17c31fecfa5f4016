// Package auth verifies bearer tokens against the members table and exposes
// the authn/admin middleware used by every other module.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"github.com/planwerk/planwerk/engine"
	"github.com/planwerk/planwerk/engine/db"
)

const migration = `
CREATE TABLE IF NOT EXISTS members (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
    email TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL DEFAULT '',
    admin INTEGER NOT NULL DEFAULT 0
) STRICT;
`

type Module struct {
	db     *sql.DB
	issuer *engine.TokenIssuer

	// failures throttles invalid tokens so key guessing stays slow.
	failures *rate.Limiter
}

func New(d *sql.DB, issuer *engine.TokenIssuer) *Module {
	db.MustMigrate(d, migration)
	return &Module{
		db:       d,
		issuer:   issuer,
		failures: rate.NewLimiter(rate.Every(time.Second), 10),
	}
}

func (m *Module) AttachRoutes(router *engine.Router) {
	router.Handle("GET", "/api/whoami", m.WithAuthn(func(r *http.Request) engine.Response {
		return engine.JSON(GetUserMeta(r.Context()))
	}))
}

// WithAuthn requires a valid bearer token tied to an existing member.
func (m *Module) WithAuthn(next engine.Handler) engine.Handler {
	return func(r *http.Request) engine.Response {
		meta, resp := m.authenticate(r)
		if resp != nil {
			return resp
		}
		return next(r.WithContext(withUserMeta(r.Context(), meta)))
	}
}

// WithAdmin requires an authenticated member with the admin flag set.
func (m *Module) WithAdmin(next engine.Handler) engine.Handler {
	return func(r *http.Request) engine.Response {
		meta, resp := m.authenticate(r)
		if resp != nil {
			return resp
		}
		if !meta.Admin {
			return engine.ClientErrorf(http.StatusForbidden, "admin access required")
		}
		return next(r.WithContext(withUserMeta(r.Context(), meta)))
	}
}

func (m *Module) authenticate(r *http.Request) (*UserMetadata, engine.Response) {
	token := bearerToken(r)
	if token == "" {
		return nil, engine.ClientErrorf(http.StatusUnauthorized, "authentication required")
	}

	claims, err := m.issuer.Verify(token)
	if err != nil {
		if !m.failures.Allow() {
			return nil, engine.ClientErrorf(http.StatusTooManyRequests, "too many failed authentication attempts")
		}
		return nil, engine.ClientErrorf(http.StatusUnauthorized, "invalid token")
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, engine.ClientErrorf(http.StatusUnauthorized, "invalid token")
	}

	meta, err := m.getMember(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ClientErrorf(http.StatusUnauthorized, "unknown member")
	}
	if err != nil {
		return nil, engine.Error(err)
	}
	return meta, nil
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if c, err := r.Cookie("token"); err == nil {
		return c.Value
	}
	return ""
}

func (m *Module) getMember(ctx context.Context, id int64) (*UserMetadata, error) {
	meta := &UserMetadata{}
	var admin int64
	err := m.db.QueryRowContext(ctx, `
		SELECT id, email, name, admin FROM members WHERE id = $1`, id).
		Scan(&meta.ID, &meta.Email, &meta.Name, &admin)
	if err != nil {
		return nil, err
	}
	meta.Admin = admin != 0
	return meta, nil
}

// EnsureMember creates the member if the email is unknown and returns its id.
// Used to bootstrap the initial admin and by tests.
func (m *Module) EnsureMember(ctx context.Context, email, name string, admin bool) (int64, error) {
	var id int64
	err := m.db.QueryRowContext(ctx, `
		INSERT INTO members (email, name, admin) VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE SET name = excluded.name, admin = excluded.admin
		RETURNING id`, email, name, admin).Scan(&id)
	return id, err
}

// IssueToken mints a bearer token for the member. The mktoken command is the
// usual caller; tests use it directly.
func (m *Module) IssueToken(memberID int64, ttl time.Duration) (string, error) {
	now := time.Now()
	return m.issuer.Sign(&jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(memberID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
}
