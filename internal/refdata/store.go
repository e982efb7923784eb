package refdata

import "context"

// Store provides reads over global reference data. There is deliberately no
// tenant parameter: reference rows are shared by all tenants and never carry
// tenant ownership.
type Store interface {
	FindCountry(ctx context.Context, countryID string) (*Country, error)
	FindClassification(ctx context.Context, classificationID string) (*Classification, error)
}

// Seeder loads reference rows at startup. Implementations must be idempotent
// so repeated deployments do not duplicate rows.
type Seeder interface {
	SeedCountries(ctx context.Context, countries []Country) error
	SeedClassifications(ctx context.Context, classifications []Classification) error
}
