package middleware

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/interviewd/pkg/models"
)

type contextKey string

const (
	keyPrefixKey contextKey = "key_prefix"
	actorKey     contextKey = "actor"
)

func setKeyPrefix(ctx context.Context, prefix string) context.Context {
	return context.WithValue(ctx, keyPrefixKey, prefix)
}

func getKeyPrefix(r *http.Request) (string, bool) {
	prefix, ok := r.Context().Value(keyPrefixKey).(string)
	return prefix, ok
}

// SetActor stores the acting user in ctx.
func SetActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// GetActor returns the acting user set by ActorAuth.Identify.
func GetActor(r *http.Request) (models.Actor, bool) {
	actor, ok := r.Context().Value(actorKey).(models.Actor)
	return actor, ok
}

// ExportedKeyPrefixKey returns the context key for key_prefix (for testing).
func ExportedKeyPrefixKey() contextKey {
	return keyPrefixKey
}
