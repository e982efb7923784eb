package refdata

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custodia/pkg/platform/sentinel"
)

func TestSeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	require.NoError(t, Seed(ctx, store))
	require.NoError(t, Seed(ctx, store))

	country, err := store.FindCountry(ctx, "de")
	require.NoError(t, err)
	assert.Equal(t, "Germany", country.Name)
	assert.Equal(t, GDPRStatusEU, country.GDPRStatus)

	class, err := store.FindClassification(ctx, "special-category")
	require.NoError(t, err)
	assert.Equal(t, 3, class.Sensitivity)
}

func TestFindMissingReference(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	require.NoError(t, Seed(ctx, store))

	_, err := store.FindCountry(ctx, "atlantis")
	assert.True(t, errors.Is(err, sentinel.ErrNotFound))

	_, err = store.FindClassification(ctx, "top-secret")
	assert.True(t, errors.Is(err, sentinel.ErrNotFound))
}

func TestDisplayFields(t *testing.T) {
	country := Country{ID: "ch", Name: "Switzerland", IsoCode: "CH", GDPRStatus: GDPRStatusAdequate}
	assert.Equal(t, map[string]any{
		"id":         "ch",
		"name":       "Switzerland",
		"isoCode":    "CH",
		"gdprStatus": "adequacy_decision",
	}, country.DisplayFields())

	class := Classification{ID: "internal", Name: "Internal", Sensitivity: 1}
	assert.Equal(t, map[string]any{
		"id":          "internal",
		"name":        "Internal",
		"sensitivity": 1,
	}, class.DisplayFields())
}
