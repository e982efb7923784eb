package recipient

import (
	"context"

	"custodia/internal/changelog"
	"custodia/internal/refdata"
)

// TrackedFields names the recipient fields whose transitions are logged.
// Free-text display fields (name, description) stay out deliberately: they
// churn often and carry no compliance meaning, while classification, country,
// status, and structural fields do.
var TrackedFields = map[string]bool{
	"type":              true,
	"parent_id":         true,
	"country_id":        true,
	"classification_id": true,
	"status":            true,
	"agreement_ref":     true,
}

// ChangeDescriptor builds the interception configuration for recipient rows.
// Country and classification foreign keys are flattened into embedded display
// maps; parent_id stays a bare ID because parent rows are tenant-scoped
// entities, not global reference data.
func ChangeDescriptor(refs refdata.Store) changelog.Descriptor {
	return changelog.Descriptor{
		EntityType:    EntityType,
		TrackedFields: TrackedFields,
		ReferenceJoins: map[string]changelog.JoinSpec{
			"country_id": {
				Resolve: func(ctx context.Context, key string) (map[string]any, error) {
					country, err := refs.FindCountry(ctx, key)
					if err != nil {
						return nil, err
					}
					return country.DisplayFields(), nil
				},
			},
			"classification_id": {
				Resolve: func(ctx context.Context, key string) (map[string]any, error) {
					classification, err := refs.FindClassification(ctx, key)
					if err != nil {
						return nil, err
					}
					return classification.DisplayFields(), nil
				},
			},
		},
	}
}
