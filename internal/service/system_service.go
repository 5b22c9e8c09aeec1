package service

import (
	"database/sql"

	"github.com/ndewijer/portfolio-valuation/internal/database"
	"github.com/ndewijer/portfolio-valuation/internal/version"
)

// SystemService handles system-related operations
type SystemService struct {
	db *sql.DB
}

// NewSystemService creates a new SystemService
func NewSystemService(db *sql.DB) *SystemService {
	return &SystemService{
		db: db,
	}
}

// CheckHealth checks the health of the system
func (s *SystemService) CheckHealth() error {
	return database.HealthCheck(s.db)
}

// CheckVersion returns the build version and the applied schema migration.
func (s *SystemService) CheckVersion() (string, int64, error) {
	schema, err := database.SchemaVersion(s.db)
	return version.Version, schema, err
}
