package composables

import (
	"context"
	"errors"
)

var ErrNoActor = errors.New("no acting user found in context")

// Actor identifies the user on whose behalf a mutating operation runs. It is
// attached by the calling surface (HTTP layer, CLI) and consumed for
// attribution only.
type Actor struct {
	ID   uint
	Name string
}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func UseActor(ctx context.Context) (Actor, error) {
	actor, ok := ctx.Value(actorKey{}).(Actor)
	if !ok {
		return Actor{}, ErrNoActor
	}
	return actor, nil
}

type actorKey struct{}
