package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/inkpress/gatekeeper/pkg/domain"
	"github.com/inkpress/gatekeeper/pkg/domain/identity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type IdentityRow struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Kind        string    `gorm:"column:kind;type:varchar(32);not null;uniqueIndex:idx_ephemeral_identities_kind_key"`
	IdentityKey string    `gorm:"column:identity_key;type:varchar(255);not null;uniqueIndex:idx_ephemeral_identities_kind_key"`
	Payload     string    `gorm:"column:payload;type:text;not null"`
	ExpireAtMs  int64     `gorm:"column:expire_at_ms;not null;index"`
	CreatedAtMs int64     `gorm:"column:created_at_ms;not null"`
}

func (IdentityRow) TableName() string {
	return "ephemeral_identities"
}

func (r *IdentityRow) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

func (r *IdentityRow) toDomain() *identity.Record {
	return &identity.Record{
		Kind:      identity.Kind(r.Kind),
		Key:       r.IdentityKey,
		Payload:   r.Payload,
		ExpireAt:  time.UnixMilli(r.ExpireAtMs).UTC(),
		CreatedAt: time.UnixMilli(r.CreatedAtMs).UTC(),
	}
}

type identityGormRepository struct {
	db *gorm.DB
}

func NewIdentityGormRepository(db *gorm.DB) identity.Repository {
	return &identityGormRepository{db: db}
}

func (r *identityGormRepository) Save(ctx context.Context, rec *identity.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	row := &IdentityRow{
		Kind:        string(rec.Kind),
		IdentityKey: rec.Key,
		Payload:     rec.Payload,
		ExpireAtMs:  rec.ExpireAt.UnixMilli(),
		CreatedAtMs: rec.CreatedAt.UnixMilli(),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "kind"}, {Name: "identity_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "expire_at_ms", "created_at_ms"}),
	}).Create(row).Error
}

func (r *identityGormRepository) Get(ctx context.Context, kind identity.Kind, key string, now time.Time) (*identity.Record, error) {
	var row IdentityRow
	if err := r.db.WithContext(ctx).
		Where("kind = ? AND identity_key = ? AND expire_at_ms > ?", string(kind), key, now.UnixMilli()).
		First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError(identity.EntityType, key)
		}
		return nil, err
	}
	return row.toDomain(), nil
}

func (r *identityGormRepository) Consume(
	ctx context.Context,
	kind identity.Kind,
	key, payload string,
	now time.Time,
) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("kind = ? AND identity_key = ? AND payload = ? AND expire_at_ms > ?", string(kind), key, payload, now.UnixMilli()).
		Delete(&IdentityRow{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *identityGormRepository) Delete(ctx context.Context, kind identity.Kind, key string) error {
	return r.db.WithContext(ctx).
		Where("kind = ? AND identity_key = ?", string(kind), key).
		Delete(&IdentityRow{}).Error
}

func (r *identityGormRepository) DeleteExpired(ctx context.Context, kind identity.Kind, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("kind = ? AND expire_at_ms <= ?", string(kind), now.UnixMilli()).
		Delete(&IdentityRow{})
	return result.RowsAffected, result.Error
}
