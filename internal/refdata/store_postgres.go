package refdata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"custodia/pkg/platform/sentinel"
)

// PostgresStore reads reference data from PostgreSQL. Reference tables are
// written only by the seeding path, so reads never join a transaction.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindCountry(ctx context.Context, countryID string) (*Country, error) {
	var c Country
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, iso_code, gdpr_status
		FROM country
		WHERE id = $1`, countryID).
		Scan(&c.ID, &c.Name, &c.IsoCode, &c.GDPRStatus)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find country: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) FindClassification(ctx context.Context, classificationID string) (*Classification, error) {
	var c Classification
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, sensitivity
		FROM classification
		WHERE id = $1`, classificationID).
		Scan(&c.ID, &c.Name, &c.Sensitivity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find classification: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) SeedCountries(ctx context.Context, countries []Country) error {
	for _, c := range countries {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO country (id, name, iso_code, gdpr_status)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO NOTHING`,
			c.ID, c.Name, c.IsoCode, c.GDPRStatus)
		if err != nil {
			return fmt.Errorf("seed country %s: %w", c.ID, err)
		}
	}
	return nil
}

func (s *PostgresStore) SeedClassifications(ctx context.Context, classifications []Classification) error {
	for _, c := range classifications {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO classification (id, name, sensitivity)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO NOTHING`,
			c.ID, c.Name, c.Sensitivity)
		if err != nil {
			return fmt.Errorf("seed classification %s: %w", c.ID, err)
		}
	}
	return nil
}
