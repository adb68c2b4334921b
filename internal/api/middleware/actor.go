package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/interviewd/internal/api/response"
	"github.com/kiranshivaraju/interviewd/pkg/models"
)

// ActorHeader carries the end user's identity token, issued by the identity
// service and forwarded by the calling service.
const ActorHeader = "X-Actor-Token"

// ActorClaims are the claims of an actor token. The subject is the user id.
type ActorClaims struct {
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

var errInvalidActorToken = errors.New("invalid actor token")

// ActorAuth resolves the acting user from an HS256 actor token.
type ActorAuth struct {
	secret []byte
}

func NewActorAuth(secret string) *ActorAuth {
	return &ActorAuth{secret: []byte(secret)}
}

// Identify rejects requests without a valid actor token and stores the
// resolved models.Actor in the request context.
func (a *ActorAuth) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(ActorHeader))
		if raw == "" {
			response.Error(w, http.StatusUnauthorized,
				response.CodeInvalidActor, "Missing "+ActorHeader+" header", nil)
			return
		}

		actor, err := a.Parse(raw)
		if err != nil {
			response.Error(w, http.StatusUnauthorized,
				response.CodeInvalidActor, "Invalid actor token", nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(SetActor(r.Context(), actor)))
	})
}

// Parse verifies raw and converts its claims to an Actor.
func (a *ActorAuth) Parse(raw string) (models.Actor, error) {
	claims := &ActorClaims{}
	tkn, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tkn.Valid {
		return models.Actor{}, errInvalidActorToken
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return models.Actor{}, errInvalidActorToken
	}
	role := models.ActorRole(claims.Role)
	if role != models.RoleCandidate && role != models.RoleEmployer {
		return models.Actor{}, errInvalidActorToken
	}
	return models.Actor{ID: id, Role: role, Email: claims.Email, Name: claims.Name}, nil
}

// Mint signs an actor token for actor. Used by keygen and tests.
func (a *ActorAuth) Mint(actor models.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := ActorClaims{
		Role:  string(actor.Role),
		Email: actor.Email,
		Name:  actor.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// RequireRole rejects actors whose role is not role.
func RequireRole(role models.ActorRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := GetActor(r)
			if !ok || actor.Role != role {
				response.Error(w, http.StatusForbidden,
					response.CodeForbidden, "Insufficient permissions", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
