package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/provost-labs/provost-go/internal/repo"
)

// UnitDirectory resolves holder units from the units table. Units are
// registered by kind: faculty_office rows carry the faculty they serve,
// council rows are addressed by their own id, and exactly one school_office
// row is expected.
type UnitDirectory struct {
	db DB
}

func NewUnitDirectory(db DB) *UnitDirectory {
	if db == nil {
		return nil
	}
	return &UnitDirectory{db: db}
}

func (d *UnitDirectory) FacultyOffice(ctx context.Context, facultyID string) (string, error) {
	if d == nil || d.db == nil {
		return "", fmt.Errorf("unit directory not initialized")
	}
	facultyID = strings.TrimSpace(facultyID)
	if facultyID == "" {
		return "", repo.ErrNotFound
	}
	var unitID string
	err := d.db.QueryRowContext(
		ctx,
		`SELECT unit_id FROM units WHERE kind = 'faculty_office' AND faculty_id = $1`,
		facultyID,
	).Scan(&unitID)
	if err != nil {
		return "", handleNotFound(err)
	}
	return unitID, nil
}

func (d *UnitDirectory) SchoolOffice(ctx context.Context) (string, error) {
	if d == nil || d.db == nil {
		return "", fmt.Errorf("unit directory not initialized")
	}
	var unitID string
	err := d.db.QueryRowContext(
		ctx,
		`SELECT unit_id FROM units WHERE kind = 'school_office' ORDER BY unit_id LIMIT 1`,
	).Scan(&unitID)
	if err != nil {
		return "", handleNotFound(err)
	}
	return unitID, nil
}

func (d *UnitDirectory) Council(ctx context.Context, councilID string) (string, error) {
	if d == nil || d.db == nil {
		return "", fmt.Errorf("unit directory not initialized")
	}
	councilID = strings.TrimSpace(councilID)
	if councilID == "" {
		return "", repo.ErrNotFound
	}
	var unitID string
	err := d.db.QueryRowContext(
		ctx,
		`SELECT unit_id FROM units WHERE kind = 'council' AND unit_id = $1`,
		councilID,
	).Scan(&unitID)
	if err != nil {
		return "", handleNotFound(err)
	}
	return unitID, nil
}
