package changelog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custodia/pkg/platform/sentinel"
)

func TestFlatten(t *testing.T) {
	ctx := context.Background()

	countries := map[string]map[string]any{
		"DE": {"id": "DE", "name": "Germany", "gdprStatus": "EU"},
	}
	joins := map[string]JoinSpec{
		"country_id": {
			Resolve: func(_ context.Context, key string) (map[string]any, error) {
				display, ok := countries[key]
				if !ok {
					return nil, sentinel.ErrNotFound
				}
				return display, nil
			},
		},
	}

	t.Run("join fields replaced by display maps", func(t *testing.T) {
		snapshot, err := Flatten(ctx, map[string]any{
			"name":       "Acme",
			"country_id": "DE",
		}, joins)
		require.NoError(t, err)

		assert.Equal(t, "Acme", snapshot["name"])
		assert.Equal(t, map[string]any{"id": "DE", "name": "Germany", "gdprStatus": "EU"}, snapshot["country_id"])
	})

	t.Run("empty join key flattens to nil", func(t *testing.T) {
		snapshot, err := Flatten(ctx, map[string]any{"country_id": ""}, joins)
		require.NoError(t, err)
		assert.Nil(t, snapshot["country_id"])
	})

	t.Run("missing reference embeds a marker instead of failing", func(t *testing.T) {
		snapshot, err := Flatten(ctx, map[string]any{"country_id": "XX"}, joins)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"id": "XX", "missing": true}, snapshot["country_id"])
	})

	t.Run("resolver failure aborts", func(t *testing.T) {
		broken := map[string]JoinSpec{
			"country_id": {Resolve: func(context.Context, string) (map[string]any, error) {
				return nil, errors.New("db down")
			}},
		}
		_, err := Flatten(ctx, map[string]any{"country_id": "DE"}, broken)
		assert.Error(t, err)
	})

	t.Run("snapshot is a value copy", func(t *testing.T) {
		fields := map[string]any{"name": "Acme", "country_id": "DE"}
		snapshot, err := Flatten(ctx, fields, joins)
		require.NoError(t, err)

		countries["DE"]["name"] = "Deutschland"
		defer func() { countries["DE"]["name"] = "Germany" }()

		embedded := snapshot["country_id"].(map[string]any)
		assert.Equal(t, "Germany", embedded["name"], "later reference edits must not reach the snapshot")
	})
}

func TestSnapshotClone(t *testing.T) {
	original := Snapshot{
		"nested": map[string]any{"k": "v"},
		"list":   []any{1, 2},
	}
	clone := original.Clone()
	clone["nested"].(map[string]any)["k"] = "changed"

	assert.Equal(t, "v", original["nested"].(map[string]any)["k"])
	assert.Nil(t, Snapshot(nil).Clone())
}
