// Package refdata holds global reference data: rows with no tenant, read-only
// after seeding. Recipient records point at these rows; snapshots embed their
// display fields rather than the bare foreign keys.
package refdata

// GDPRStatus classifies a country's transfer basis.
type GDPRStatus string

const (
	GDPRStatusEU       GDPRStatus = "eu_member"
	GDPRStatusAdequate GDPRStatus = "adequacy_decision"
	GDPRStatusThird    GDPRStatus = "third_country"
)

// Country is a destination country for a data recipient.
type Country struct {
	ID         string
	Name       string
	IsoCode    string
	GDPRStatus GDPRStatus
}

// DisplayFields returns the fields embedded into flattened snapshots.
func (c Country) DisplayFields() map[string]any {
	return map[string]any{
		"id":         c.ID,
		"name":       c.Name,
		"isoCode":    c.IsoCode,
		"gdprStatus": string(c.GDPRStatus),
	}
}

// Classification labels the sensitivity of data handled by a recipient.
type Classification struct {
	ID          string
	Name        string
	Sensitivity int
}

// DisplayFields returns the fields embedded into flattened snapshots.
func (c Classification) DisplayFields() map[string]any {
	return map[string]any{
		"id":          c.ID,
		"name":        c.Name,
		"sensitivity": c.Sensitivity,
	}
}
