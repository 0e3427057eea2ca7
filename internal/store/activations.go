package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/alteralabs/license-server/internal/entitlement"
	"github.com/alteralabs/license-server/internal/models"
)

// ActivationStore is the seat ledger. The seat-count check and the insert of
// a new activation run inside one transaction that holds a FOR UPDATE lock on
// the license row, so concurrent activations for the same key are serialized
// and can never jointly exceed max_seats.
type ActivationStore struct {
	db *gorm.DB
}

func NewActivationStore(db *gorm.DB) *ActivationStore {
	return &ActivationStore{db: db}
}

// Activate transitions the (license, machine) pair to live. If the pair
// already holds a live seat the call only refreshes the username and performs
// no seat check. A revoked pair gets a brand-new row, subject to the seat
// check again.
func (s *ActivationStore) Activate(ctx context.Context, lic *models.License, machineID, username string) (*models.Activation, error) {
	var act models.Activation

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Lock the license row. Every activation for this key queues behind
		// the lock, which makes count-then-insert atomic per license.
		var locked models.License
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("key = ?", lic.Key).
			First(&locked).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return entitlement.ErrLicenseNotFound
			}
			return err
		}

		// Idempotent re-activation: the seat is already counted.
		var existing models.Activation
		err := tx.Where("license_key = ? AND machine_id = ? AND revoked = ?", lic.Key, machineID, false).
			First(&existing).Error
		if err == nil {
			if username != "" && username != existing.Username {
				if err := tx.Model(&existing).Update("username", username).Error; err != nil {
					return err
				}
				existing.Username = username
			}
			act = existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var liveSeats int64
		if err := tx.Model(&models.Activation{}).
			Where("license_key = ? AND revoked = ?", lic.Key, false).
			Count(&liveSeats).Error; err != nil {
			return err
		}
		if liveSeats >= int64(locked.MaxSeats) {
			return entitlement.ErrSeatLimitReached
		}

		act = models.Activation{
			LicenseKey:  lic.Key,
			MachineID:   machineID,
			Username:    username,
			ActivatedAt: time.Now().UTC(),
		}
		return tx.Create(&act).Error
	})
	if err != nil {
		return nil, err
	}
	return &act, nil
}

// Deactivate revokes the live activation for the pair. Revoked is monotonic:
// the row never flips back, a later activation creates a new row.
func (s *ActivationStore) Deactivate(ctx context.Context, licenseKey, machineID string) error {
	res := s.db.WithContext(ctx).Model(&models.Activation{}).
		Where("license_key = ? AND machine_id = ? AND revoked = ?", licenseKey, machineID, false).
		Update("revoked", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return entitlement.ErrActivationNotFound
	}
	return nil
}

// FindLive returns the live activation for the pair, if any.
func (s *ActivationStore) FindLive(ctx context.Context, licenseKey, machineID string) (*models.Activation, error) {
	var act models.Activation
	err := s.db.WithContext(ctx).
		Where("license_key = ? AND machine_id = ? AND revoked = ?", licenseKey, machineID, false).
		First(&act).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, entitlement.ErrActivationNotFound
		}
		return nil, err
	}
	return &act, nil
}

// CountLive returns the number of live seats on a license.
func (s *ActivationStore) CountLive(ctx context.Context, licenseKey string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Activation{}).
		Where("license_key = ? AND revoked = ?", licenseKey, false).
		Count(&count).Error
	return count, err
}
