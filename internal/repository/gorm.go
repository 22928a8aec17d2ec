package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "github.com/heap-analysis/pkg/errors"
)

// GormSummaryRepository implements SummaryRepository using GORM.
type GormSummaryRepository struct {
	db *gorm.DB
}

// NewGormSummaryRepository creates a new GormSummaryRepository.
func NewGormSummaryRepository(db *gorm.DB) *GormSummaryRepository {
	return &GormSummaryRepository{db: db}
}

// Save inserts or replaces the summary for its dump key.
func (r *GormSummaryRepository) Save(ctx context.Context, summary *IndexSummary) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "dump_key"}},
			UpdateAll: true,
		}).
		Create(summary).Error

	if err != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to save index summary", err)
	}
	return nil
}

// GetByDumpKey retrieves the summary for a dump key.
func (r *GormSummaryRepository) GetByDumpKey(ctx context.Context, dumpKey string) (*IndexSummary, error) {
	var summary IndexSummary

	err := r.db.WithContext(ctx).Where("dump_key = ?", dumpKey).First(&summary).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Newf(apperrors.CodeNotFound, "no summary for dump: %s", dumpKey)
		}
		return nil, fmt.Errorf("failed to get index summary: %w", err)
	}

	return &summary, nil
}

// List returns the most recent summaries, newest first.
func (r *GormSummaryRepository) List(ctx context.Context, limit int) ([]*IndexSummary, error) {
	var summaries []*IndexSummary

	err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&summaries).Error

	if err != nil {
		return nil, fmt.Errorf("failed to list index summaries: %w", err)
	}

	return summaries, nil
}
