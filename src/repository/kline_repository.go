package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"algoengine/src/model"
)

// KlineRepository is the tick cache access layer. Backtests replay from
// it with --restore-ticks instead of re-downloading history.
type KlineRepository struct {
	db *gorm.DB
}

func NewKlineRepository(db *gorm.DB) *KlineRepository {
	return &KlineRepository{db: db}
}

// SaveBatch upserts one download page. Re-downloading an already cached
// range is a no-op thanks to the source/symbol/open_time unique index.
func (r *KlineRepository) SaveBatch(ctx context.Context, klines []model.Kline) error {
	if len(klines) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&klines).Error
}

// FindRange returns cached klines for [from, to) open times, oldest
// first.
func (r *KlineRepository) FindRange(ctx context.Context, source, symbol string, from, to int64) ([]model.Kline, error) {
	var klines []model.Kline

	err := r.db.WithContext(ctx).
		Where("source = ? AND symbol = ? AND open_time >= ? AND open_time < ?", source, symbol, from, to).
		Order("open_time ASC").
		Find(&klines).Error
	if err != nil {
		return nil, err
	}

	return klines, nil
}

// Count reports how many klines are cached for a source and symbol.
func (r *KlineRepository) Count(ctx context.Context, source, symbol string) (int64, error) {
	var count int64

	err := r.db.WithContext(ctx).
		Model(&model.Kline{}).
		Where("source = ? AND symbol = ?", source, symbol).
		Count(&count).Error

	return count, err
}
