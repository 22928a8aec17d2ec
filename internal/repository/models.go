// Package repository persists the dump catalog: one row of build metadata
// per indexed heap dump. The index itself is never persisted.
package repository

import "time"

// IndexSummary represents the heap_index_summary table.
type IndexSummary struct {
	ID                  int64     `gorm:"column:id;primaryKey;autoIncrement"`
	DumpKey             string    `gorm:"column:dump_key;type:varchar(512);uniqueIndex"`
	HprofVersion        string    `gorm:"column:hprof_version;type:varchar(64)"`
	IdentifierSize      int       `gorm:"column:identifier_size"`
	ClassCount          int       `gorm:"column:class_count"`
	InstanceCount       int       `gorm:"column:instance_count"`
	ObjectArrayCount    int       `gorm:"column:object_array_count"`
	PrimitiveArrayCount int       `gorm:"column:primitive_array_count"`
	RootCount           int       `gorm:"column:root_count"`
	TotalBytes          int64     `gorm:"column:total_bytes"`
	BuildMillis         int64     `gorm:"column:build_millis"`
	CreatedAt           time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the table name for IndexSummary.
func (IndexSummary) TableName() string {
	return "heap_index_summary"
}
