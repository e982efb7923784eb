package refdata

import "context"

// DefaultCountries is a small starter set; production deployments extend it
// through the seeding path, never through tenant-facing writes.
var DefaultCountries = []Country{
	{ID: "de", Name: "Germany", IsoCode: "DE", GDPRStatus: GDPRStatusEU},
	{ID: "fr", Name: "France", IsoCode: "FR", GDPRStatus: GDPRStatusEU},
	{ID: "ch", Name: "Switzerland", IsoCode: "CH", GDPRStatus: GDPRStatusAdequate},
	{ID: "us", Name: "United States", IsoCode: "US", GDPRStatus: GDPRStatusThird},
	{ID: "in", Name: "India", IsoCode: "IN", GDPRStatus: GDPRStatusThird},
}

// DefaultClassifications covers the common data sensitivity tiers.
var DefaultClassifications = []Classification{
	{ID: "public", Name: "Public", Sensitivity: 0},
	{ID: "internal", Name: "Internal", Sensitivity: 1},
	{ID: "confidential", Name: "Confidential", Sensitivity: 2},
	{ID: "special-category", Name: "Special category", Sensitivity: 3},
}

// Seed loads the default reference sets. Safe to run on every startup.
func Seed(ctx context.Context, seeder Seeder) error {
	if err := seeder.SeedCountries(ctx, DefaultCountries); err != nil {
		return err
	}
	return seeder.SeedClassifications(ctx, DefaultClassifications)
}
