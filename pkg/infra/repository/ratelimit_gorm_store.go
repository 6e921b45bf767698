package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/inkpress/gatekeeper/pkg/domain"
	"github.com/inkpress/gatekeeper/pkg/domain/ratelimit"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// RateLimitRow is the durable form of a ratelimit.Record. Instants are unix
// milliseconds; a zero BlockUntilMs means no block was ever set.
type RateLimitRow struct {
	ClientKey     string `gorm:"column:client_key;primaryKey;type:text"`
	WindowStartMs int64  `gorm:"column:window_start_ms;not null"`
	WindowEndMs   int64  `gorm:"column:window_end_ms;not null;index"`
	RequestCount  int64  `gorm:"column:request_count;not null"`
	Blocked       bool   `gorm:"column:blocked;not null"`
	BlockUntilMs  int64  `gorm:"column:block_until_ms;not null"`
	UpdatedAtMs   int64  `gorm:"column:updated_at_ms;not null"`
}

func (RateLimitRow) TableName() string {
	return "rate_limit_records"
}

func (r *RateLimitRow) toDomain() *ratelimit.Record {
	rec := &ratelimit.Record{
		ClientKey:    r.ClientKey,
		WindowStart:  time.UnixMilli(r.WindowStartMs).UTC(),
		WindowEnd:    time.UnixMilli(r.WindowEndMs).UTC(),
		RequestCount: r.RequestCount,
		Blocked:      r.Blocked,
		UpdatedAt:    time.UnixMilli(r.UpdatedAtMs).UTC(),
	}
	if r.BlockUntilMs != 0 {
		rec.BlockUntil = time.UnixMilli(r.BlockUntilMs).UTC()
	}
	return rec
}

// The upsert runs under the row lock of the conflicting key, so create,
// increment and reset are one statement. EXCLUDED carries the fresh window.
const upsertRateLimitSQL = `
INSERT INTO rate_limit_records
	(client_key, window_start_ms, window_end_ms, request_count, blocked, block_until_ms, updated_at_ms)
VALUES (?, ?, ?, 1, false, 0, ?)
ON CONFLICT (client_key) DO UPDATE SET
	window_start_ms = CASE WHEN ` + resetCondition + ` THEN EXCLUDED.window_start_ms ELSE rate_limit_records.window_start_ms END,
	window_end_ms   = CASE WHEN ` + resetCondition + ` THEN EXCLUDED.window_end_ms ELSE rate_limit_records.window_end_ms END,
	request_count   = CASE WHEN ` + resetCondition + ` THEN 1 ELSE rate_limit_records.request_count + 1 END,
	blocked         = CASE WHEN ` + resetCondition + ` THEN false ELSE rate_limit_records.blocked END,
	block_until_ms  = CASE WHEN ` + resetCondition + ` THEN 0 ELSE rate_limit_records.block_until_ms END,
	updated_at_ms   = EXCLUDED.updated_at_ms
RETURNING client_key, window_start_ms, window_end_ms, request_count, blocked, block_until_ms, updated_at_ms`

const resetCondition = `(NOT (rate_limit_records.blocked AND rate_limit_records.block_until_ms > EXCLUDED.updated_at_ms)
		AND (rate_limit_records.window_end_ms <= EXCLUDED.updated_at_ms OR rate_limit_records.blocked))`

type rateLimitGormStore struct {
	db *gorm.DB
}

func NewRateLimitGormStore(db *gorm.DB) ratelimit.Store {
	return &rateLimitGormStore{db: db}
}

func (s *rateLimitGormStore) Get(ctx context.Context, clientKey string) (*ratelimit.Record, error) {
	var row RateLimitRow
	if err := s.db.WithContext(ctx).
		Where("client_key = ?", clientKey).
		First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError(ratelimit.EntityType, clientKey)
		}
		return nil, translateError(err)
	}
	return row.toDomain(), nil
}

func (s *rateLimitGormStore) IncrementAndGet(
	ctx context.Context,
	clientKey string,
	now time.Time,
	window time.Duration,
) (*ratelimit.Record, error) {
	var row RateLimitRow
	nowMs := now.UnixMilli()
	result := s.db.WithContext(ctx).
		Raw(upsertRateLimitSQL, clientKey, nowMs, now.Add(window).UnixMilli(), nowMs).
		Scan(&row)
	if result.Error != nil {
		return nil, translateError(result.Error)
	}
	if row.ClientKey == "" {
		return nil, domain.NewNotFoundError(ratelimit.EntityType, clientKey)
	}
	return row.toDomain(), nil
}

func (s *rateLimitGormStore) SetBlocked(ctx context.Context, clientKey string, now, until time.Time) (bool, error) {
	nowMs := now.UnixMilli()
	result := s.db.WithContext(ctx).Exec(`
UPDATE rate_limit_records
SET blocked = true, block_until_ms = ?, updated_at_ms = ?
WHERE client_key = ? AND NOT (blocked AND block_until_ms > ?)`,
		until.UnixMilli(), nowMs, clientKey, nowMs,
	)
	if result.Error != nil {
		return false, translateError(result.Error)
	}
	if result.RowsAffected == 1 {
		return true, nil
	}
	if _, err := s.Get(ctx, clientKey); err != nil {
		return false, err
	}
	return false, nil
}

func (s *rateLimitGormStore) Delete(ctx context.Context, clientKey string) error {
	result := s.db.WithContext(ctx).
		Where("client_key = ?", clientKey).
		Delete(&RateLimitRow{})
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NewNotFoundError(ratelimit.EntityType, clientKey)
	}
	return nil
}

func (s *rateLimitGormStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	nowMs := now.UnixMilli()
	result := s.db.WithContext(ctx).
		Where("window_end_ms <= ? AND (NOT blocked OR block_until_ms <= ?)", nowMs, nowMs).
		Delete(&RateLimitRow{})
	return result.RowsAffected, result.Error
}

// translateError maps SQLSTATE class 22 (data exception) onto
// domain.ErrInvalidClientKey. Those errors describe the key the caller sent,
// not the health of the database.
func translateError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "22") {
		return fmt.Errorf("%w: %s (SQLSTATE %s)", domain.ErrInvalidClientKey, pgErr.Message, pgErr.Code)
	}
	return err
}
