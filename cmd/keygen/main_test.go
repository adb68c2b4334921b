package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	mw "github.com/kiranshivaraju/interviewd/internal/api/middleware"
	"github.com/kiranshivaraju/interviewd/internal/store"
	"github.com/kiranshivaraju/interviewd/pkg/models"
)

type fakeKeys struct {
	created   *models.APIKey
	revoked   uuid.UUID
	revokeErr error
}

func (f *fakeKeys) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	f.created = key
	return nil
}

func (f *fakeKeys) RevokeAPIKey(_ context.Context, id uuid.UUID) error {
	f.revoked = id
	return f.revokeErr
}

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"create", []string{"-name", "ats"}, ""},
		{"create without name", nil, "-name is required"},
		{"revoke", []string{"-revoke", uuid.NewString()}, ""},
		{"revoke bad id", []string{"-revoke", "abc"}, "invalid id"},
		{"token", []string{"-token", "-role", "employer"}, ""},
		{"token bad role", []string{"-token", "-role", "admin"}, "-role"},
		{"unknown flag", []string{"-bogus"}, "bogus"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseFlags(tt.args)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCreateKey_StoresHashAndPrefix(t *testing.T) {
	keys := &fakeKeys{}
	var out bytes.Buffer

	err := createKey(context.Background(), keys, options{name: "ats", scopes: "assignments, grading,"}, &out)
	require.NoError(t, err)
	require.NotNil(t, keys.created)

	var raw string
	for _, line := range strings.Split(out.String(), "\n") {
		if strings.HasPrefix(line, "key: ") {
			raw = strings.TrimPrefix(line, "key: ")
		}
	}
	require.True(t, strings.HasPrefix(raw, "ivd_"), "printed key %q", raw)

	assert.Equal(t, "ats", keys.created.Name)
	assert.Equal(t, raw[:mw.KeyPrefixLen], keys.created.KeyPrefix)
	assert.Equal(t, []string{"assignments", "grading"}, keys.created.Scopes)
	assert.NotContains(t, keys.created.KeyHash, raw)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(keys.created.KeyHash), []byte(raw)))
}

func TestGenerateRawKey_Unique(t *testing.T) {
	a, err := generateRawKey()
	require.NoError(t, err)
	b, err := generateRawKey()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Len(t, a, len("ivd_")+48)
}

func TestRevokeKey(t *testing.T) {
	id := uuid.New()

	t.Run("revoked", func(t *testing.T) {
		keys := &fakeKeys{}
		var out bytes.Buffer
		require.NoError(t, revokeKey(context.Background(), keys, id, &out))
		assert.Equal(t, id, keys.revoked)
		assert.Contains(t, out.String(), id.String())
	})

	t.Run("not found", func(t *testing.T) {
		keys := &fakeKeys{revokeErr: store.ErrNotFound}
		err := revokeKey(context.Background(), keys, id, &bytes.Buffer{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})
}

func TestMintToken_RoundTrips(t *testing.T) {
	actors := mw.NewActorAuth("dev-secret")
	actorID := uuid.New()
	var out bytes.Buffer

	err := mintToken(actors, options{
		role:    "candidate",
		actorID: actorID.String(),
		email:   "cand@example.test",
		ttl:     time.Hour,
	}, &out)
	require.NoError(t, err)

	actor, err := actors.Parse(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, actorID, actor.ID)
	assert.Equal(t, models.RoleCandidate, actor.Role)
	assert.Equal(t, "cand@example.test", actor.Email)
}

func TestMintToken_InvalidActorID(t *testing.T) {
	err := mintToken(mw.NewActorAuth("dev-secret"), options{role: "employer", actorID: "nope", ttl: time.Hour}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-actor")
}

func TestRun_FailsOnMissingConfig(t *testing.T) {
	for _, key := range []string{"DATABASE_URL", "REDIS_URL", "ACTOR_TOKEN_SECRET", "AI_PROVIDER"} {
		t.Setenv(key, "")
	}

	err := run([]string{"-name", "ats"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}
