package cache

import (
	"context"
	"errors"
	"fmt"
)

// Fetch is the typed form of GetOrCompute. When the manager has a remote
// tier, a local miss first tries the remote copy and a computed value is
// written back to it. A remote copy keeps the time it was computed, so it
// expires locally when it would have expired in the process that made it.
func Fetch[T any](ctx context.Context, m *Manager, key string, priority Priority, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if fn == nil {
		return zero, ErrNilCompute
	}

	v, err := m.GetOrCompute(ctx, key, priority, func(ctx context.Context) (any, error) {
		remote := m.Remote()
		gen := m.Generation()

		if remote != nil {
			var cached T
			computedAt, err := remote.Get(ctx, key, &cached)
			switch {
			case err == nil && m.cfg.Now().Sub(computedAt) < m.TTL():
				return stamped{value: cached, computedAt: computedAt}, nil
			case err == nil:
				m.logger.WithField("key", key).Debug("ignoring stale remote copy")
			case !errors.Is(err, ErrCacheMiss):
				m.logger.WithError(err).WithField("key", key).Warn("remote cache read failed")
			}
		}

		out, err := fn(ctx)
		if err != nil {
			return nil, err
		}

		if remote != nil && m.Generation() == gen {
			if err := remote.Set(ctx, key, out, m.cfg.Now(), m.TTL()); err != nil {
				m.logger.WithError(err).WithField("key", key).Warn("remote cache write failed")
			}
		}
		return out, nil
	})
	if err != nil {
		return zero, err
	}

	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: key %q holds %T", ErrTypeMismatch, key, v)
	}
	return typed, nil
}
