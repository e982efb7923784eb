package changelog

import (
	"context"
	"errors"
	"fmt"

	"custodia/pkg/platform/sentinel"
)

// JoinSpec describes how one foreign-key field is denormalized into the
// snapshot. Resolve returns the referenced row's display fields.
type JoinSpec struct {
	Resolve func(ctx context.Context, key string) (map[string]any, error)
}

// Flatten produces a self-contained snapshot from an entity's field map: every
// field configured with a join is replaced by the referenced row's embedded
// display fields instead of the bare key. The result is a value copy, frozen
// at the moment of flattening.
//
// A join key that resolves to no row is embedded as {"id": key, "missing":
// true} rather than failing the mutation: reference data may legitimately be
// removed after a recipient pointed at it.
func Flatten(ctx context.Context, fields map[string]any, joins map[string]JoinSpec) (Snapshot, error) {
	out := make(map[string]any, len(fields))
	for name, value := range fields {
		spec, joined := joins[name]
		if !joined {
			out[name] = copyValue(value)
			continue
		}
		key, _ := value.(string)
		if key == "" {
			out[name] = nil
			continue
		}
		display, err := spec.Resolve(ctx, key)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				out[name] = map[string]any{"id": key, "missing": true}
				continue
			}
			return nil, fmt.Errorf("flatten %s: %w", name, err)
		}
		out[name] = copyValue(display)
	}
	return Snapshot(out), nil
}
