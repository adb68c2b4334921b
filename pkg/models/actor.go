package models

import "github.com/google/uuid"

type ActorRole string

const (
	RoleCandidate ActorRole = "candidate"
	RoleEmployer  ActorRole = "employer"
)

// Actor is the authenticated end user on whose behalf a request runs.
type Actor struct {
	ID    uuid.UUID `json:"id"`
	Role  ActorRole `json:"role"`
	Email string    `json:"email"`
	Name  string    `json:"name"`
}
