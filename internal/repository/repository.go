package repository

import "context"

// SummaryRepository stores and retrieves index build summaries.
type SummaryRepository interface {
	// Save inserts or replaces the summary for its dump key.
	Save(ctx context.Context, summary *IndexSummary) error

	// GetByDumpKey retrieves the summary for a dump key.
	GetByDumpKey(ctx context.Context, dumpKey string) (*IndexSummary, error)

	// List returns the most recent summaries, newest first.
	List(ctx context.Context, limit int) ([]*IndexSummary, error)
}
