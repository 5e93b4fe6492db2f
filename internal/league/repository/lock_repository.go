package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/codeowl/platform/internal/common/database"
	"github.com/codeowl/platform/internal/league/models"
)

// LockRepository hands out leases on league_locks rows.
type LockRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewLockRepository(db *gorm.DB) *LockRepository {
	return &LockRepository{db: db, now: time.Now}
}

// Acquire takes the lease for key, renewing it when owner already holds
// it and claiming it when the previous holder let it expire.
func (r *LockRepository) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	now := r.now().UTC()
	expiresAt := now.Add(ttl)

	err := r.db.WithContext(ctx).Create(&models.Lock{
		LockKey:    key,
		Owner:      owner,
		AcquiredAt: now,
		ExpiresAt:  expiresAt,
	}).Error
	if err == nil {
		return true, nil
	}
	if !database.IsDuplicateKey(err) {
		return false, fmt.Errorf("create lock: %w", err)
	}

	var existing models.Lock
	if err := r.db.WithContext(ctx).Where("lock_key = ?", key).First(&existing).Error; err != nil {
		if database.IsNotFound(err) {
			// released between the insert and the read
			return false, nil
		}
		return false, fmt.Errorf("load lock: %w", err)
	}

	if existing.Owner == owner {
		err := r.db.WithContext(ctx).Model(&models.Lock{}).
			Where("lock_key = ? AND owner = ?", key, owner).
			Updates(map[string]interface{}{
				"acquired_at":   now,
				"expires_at":    expiresAt,
				"renewed_count": gorm.Expr("renewed_count + 1"),
			}).Error
		if err != nil {
			return false, fmt.Errorf("renew lock: %w", err)
		}
		return true, nil
	}

	if existing.ExpiresAt.After(now) {
		return false, nil
	}

	// Conditional on the stale owner so two claimers cannot both win.
	res := r.db.WithContext(ctx).Model(&models.Lock{}).
		Where("lock_key = ? AND owner = ? AND expires_at < ?", key, existing.Owner, now).
		Updates(map[string]interface{}{
			"owner":         owner,
			"acquired_at":   now,
			"expires_at":    expiresAt,
			"renewed_count": 0,
		})
	if res.Error != nil {
		return false, fmt.Errorf("claim expired lock: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Release drops the lease if owner still holds it.
func (r *LockRepository) Release(ctx context.Context, key, owner string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("lock_key = ? AND owner = ?", key, owner).
		Delete(&models.Lock{})
	if res.Error != nil {
		return false, fmt.Errorf("release lock: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Holder returns the current unexpired owner of key, or "".
func (r *LockRepository) Holder(ctx context.Context, key string) (string, error) {
	var lock models.Lock
	err := r.db.WithContext(ctx).
		Where("lock_key = ? AND expires_at > ?", key, r.now().UTC()).
		First(&lock).Error
	if database.IsNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load lock: %w", err)
	}
	return lock.Owner, nil
}
