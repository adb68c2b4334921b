// Command keygen issues and revokes API keys, and mints actor tokens for
// local development.
//
//	keygen -name ats-integration
//	keygen -revoke 3f0c...
//	keygen -token -role employer -actor 3f0c... -email hr@acme.test
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	mw "github.com/kiranshivaraju/interviewd/internal/api/middleware"
	"github.com/kiranshivaraju/interviewd/internal/config"
	"github.com/kiranshivaraju/interviewd/internal/store"
	"github.com/kiranshivaraju/interviewd/pkg/models"
)

const keyPrefix = "ivd_"

// KeyWriter is the slice of the store keygen needs.
type KeyWriter interface {
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

func main() {
	_ = godotenv.Load()

	if err := run(os.Args[1:], os.Stdout); err != nil {
		slog.Error("keygen failed", "error", err)
		os.Exit(1)
	}
}

type options struct {
	name    string
	scopes  string
	revoke  string
	token   bool
	role    string
	actorID string
	email   string
	ttl     time.Duration
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&o.name, "name", "", "label for the new API key")
	fs.StringVar(&o.scopes, "scopes", "", "comma-separated scopes recorded on the key")
	fs.StringVar(&o.revoke, "revoke", "", "id of the API key to revoke")
	fs.BoolVar(&o.token, "token", false, "mint an actor token instead of an API key")
	fs.StringVar(&o.role, "role", "", "actor role: candidate or employer")
	fs.StringVar(&o.actorID, "actor", "", "actor id (uuid); random when empty")
	fs.StringVar(&o.email, "email", "", "actor email")
	fs.DurationVar(&o.ttl, "ttl", 24*time.Hour, "actor token lifetime")
	if err := fs.Parse(args); err != nil {
		return o, err
	}

	switch {
	case o.token:
		if o.role != string(models.RoleCandidate) && o.role != string(models.RoleEmployer) {
			return o, fmt.Errorf("-role must be candidate or employer, got %q", o.role)
		}
	case o.revoke != "":
		if _, err := uuid.Parse(o.revoke); err != nil {
			return o, fmt.Errorf("-revoke: invalid id %q", o.revoke)
		}
	case o.name == "":
		return o, errors.New("-name is required")
	}
	return o, nil
}

func run(args []string, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if opts.token {
		return mintToken(mw.NewActorAuth(cfg.Auth.ActorTokenSecret), opts, stdout)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	st := store.NewPostgresStore(pool)

	if opts.revoke != "" {
		return revokeKey(ctx, st, uuid.MustParse(opts.revoke), stdout)
	}
	return createKey(ctx, st, opts, stdout)
}

func createKey(ctx context.Context, st KeyWriter, opts options, stdout io.Writer) error {
	raw, err := generateRawKey()
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash key: %w", err)
	}

	now := time.Now().UTC()
	key := &models.APIKey{
		ID:        uuid.New(),
		Name:      opts.name,
		KeyHash:   string(hash),
		KeyPrefix: raw[:mw.KeyPrefixLen],
		Scopes:    splitScopes(opts.scopes),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := st.CreateAPIKey(ctx, key); err != nil {
		return fmt.Errorf("store key: %w", err)
	}

	fmt.Fprintf(stdout, "id:  %s\nkey: %s\n", key.ID, raw)
	fmt.Fprintln(stdout, "The key is shown once. Store it somewhere safe.")
	return nil
}

func revokeKey(ctx context.Context, st KeyWriter, id uuid.UUID, stdout io.Writer) error {
	if err := st.RevokeAPIKey(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("api key %s not found or already revoked", id)
		}
		return fmt.Errorf("revoke key: %w", err)
	}
	fmt.Fprintf(stdout, "revoked %s\n", id)
	return nil
}

func mintToken(actors *mw.ActorAuth, opts options, stdout io.Writer) error {
	id := uuid.New()
	if opts.actorID != "" {
		parsed, err := uuid.Parse(opts.actorID)
		if err != nil {
			return fmt.Errorf("-actor: invalid id %q", opts.actorID)
		}
		id = parsed
	}

	token, err := actors.Mint(models.Actor{
		ID:    id,
		Role:  models.ActorRole(opts.role),
		Email: opts.email,
	}, opts.ttl)
	if err != nil {
		return fmt.Errorf("mint token: %w", err)
	}
	fmt.Fprintln(stdout, token)
	return nil
}

func generateRawKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return keyPrefix + hex.EncodeToString(b), nil
}

func splitScopes(s string) []string {
	scopes := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			scopes = append(scopes, part)
		}
	}
	return scopes
}
