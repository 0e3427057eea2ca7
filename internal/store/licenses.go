// Package store provides the gorm-backed implementations of the entitlement
// interfaces: license lookup, the activation seat ledger and the ban registry.
package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/alteralabs/license-server/internal/entitlement"
	"github.com/alteralabs/license-server/internal/models"
)

// LicenseStore looks up license terms by key. Reads are uncached: license
// terms can change between calls and every call must see the latest row.
type LicenseStore struct {
	db *gorm.DB
}

func NewLicenseStore(db *gorm.DB) *LicenseStore {
	return &LicenseStore{db: db}
}

func (s *LicenseStore) FindByKey(ctx context.Context, key string) (*models.License, error) {
	var lic models.License
	if err := s.db.WithContext(ctx).Where("key = ?", key).First(&lic).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, entitlement.ErrLicenseNotFound
		}
		return nil, err
	}
	return &lic, nil
}
