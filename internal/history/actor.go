package history

import "context"

// ActorCLI is recorded when no actor is attached to the context.
const ActorCLI = "cli"

type actorKey struct{}

// WithActor tags ctx with who is performing operations, e.g. "bot:1234".
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor attached by WithActor, or ActorCLI.
func ActorFrom(ctx context.Context) string {
	if a, ok := ctx.Value(actorKey{}).(string); ok && a != "" {
		return a
	}
	return ActorCLI
}
