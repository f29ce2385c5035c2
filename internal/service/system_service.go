package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ndewijer/depotsync/internal/database"
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

// SchemaVersion returns the applied migration version.
func (s *SystemService) SchemaVersion(ctx context.Context) (string, error) {
	v, err := database.SchemaVersion(ctx, s.db)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", v), nil
}
