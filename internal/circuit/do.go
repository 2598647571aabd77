package circuit

import "context"

// Do runs op through the named circuit with a typed result. It is a
// generic convenience over Breaker.Execute for callers that want to
// avoid the any round-trip.
func Do[T any](ctx context.Context, b *Breaker, name string, op func(context.Context) (T, error), fallback func(context.Context) (T, error), override *Config) (T, error) {
	var fb Operation
	if fallback != nil {
		fb = func(ctx context.Context) (any, error) { return fallback(ctx) }
	}

	res, err := b.Execute(ctx, name, func(ctx context.Context) (any, error) {
		return op(ctx)
	}, fb, override)

	v, ok := res.(T)
	if !ok {
		var zero T
		return zero, err
	}
	return v, err
}
