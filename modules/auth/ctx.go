package auth

import "context"

type memberMetaKey struct{}

// UserMetadata describes the authenticated member for downstream handlers.
type UserMetadata struct {
	ID    int64
	Email string
	Name  string
	Admin bool
}

func withUserMeta(ctx context.Context, meta *UserMetadata) context.Context {
	return context.WithValue(ctx, memberMetaKey{}, meta)
}

// GetUserMeta returns the member metadata set by WithAuthn, or nil when the
// request was not authenticated.
func GetUserMeta(ctx context.Context) *UserMetadata {
	val := ctx.Value(memberMetaKey{})
	if val == nil {
		return nil
	}
	um, _ := val.(*UserMetadata)
	return um
}
