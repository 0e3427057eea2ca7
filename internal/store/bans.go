package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/alteralabs/license-server/internal/database"
	"github.com/alteralabs/license-server/internal/models"
)

// BanStore answers ban lookups. Results are cached in Redis for a short TTL:
// bans are consulted on every activate and validate call, and a slightly
// stale negative answer is acceptable because the next call re-checks. Cache
// errors fall through to Postgres; only database errors propagate.
type BanStore struct {
	db *gorm.DB
}

func NewBanStore(db *gorm.DB) *BanStore {
	return &BanStore{db: db}
}

func (s *BanStore) IsBanned(ctx context.Context, machineID string) (bool, error) {
	cacheKey := database.CacheKeyBan + machineID

	var banned bool
	if err := database.CacheGet(cacheKey, &banned); err == nil {
		return banned, nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.BannedMachine{}).
		Where("machine_id = ?", machineID).
		Count(&count).Error; err != nil {
		return false, err
	}
	banned = count > 0

	database.CacheSet(cacheKey, banned, database.CacheTTLBan)
	return banned, nil
}
