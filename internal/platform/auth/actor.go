package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Role is the closed set of principal types the platform recognizes.
type Role string

const (
	RolePatient   Role = "patient"
	RoleCounselor Role = "counselor"
	RoleAdmin     Role = "admin"
)

// ParseRole validates a raw role string against the closed set.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RolePatient, RoleCounselor, RoleAdmin:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Actor is the authenticated principal making a request.
type Actor struct {
	ID   uuid.UUID
	Name string
	Role Role
}

type contextKey string

const actorKey contextKey = "actor"

// WithActor returns a context carrying the authenticated actor.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// ActorFromContext retrieves the authenticated actor, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey).(Actor)
	return a, ok
}
