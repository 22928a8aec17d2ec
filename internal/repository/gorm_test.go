package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	apperrors "github.com/heap-analysis/pkg/errors"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&IndexSummary{}))
	return db
}

func sampleSummary(dumpKey string) *IndexSummary {
	return &IndexSummary{
		DumpKey:             dumpKey,
		HprofVersion:        "JAVA PROFILE 1.0.2",
		IdentifierSize:      8,
		ClassCount:          120,
		InstanceCount:       45000,
		ObjectArrayCount:    800,
		PrimitiveArrayCount: 2100,
		RootCount:           96,
		TotalBytes:          1 << 28,
		BuildMillis:         4200,
	}
}

func TestGormSummaryRepository_SaveAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormSummaryRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, sampleSummary("dumps/app.hprof")))

	got, err := repo.GetByDumpKey(ctx, "dumps/app.hprof")
	require.NoError(t, err)
	assert.Equal(t, 120, got.ClassCount)
	assert.Equal(t, 45000, got.InstanceCount)
	assert.Equal(t, int64(1<<28), got.TotalBytes)
	assert.WithinDuration(t, time.Now(), got.CreatedAt, time.Minute)
}

func TestGormSummaryRepository_SaveUpsertsByDumpKey(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormSummaryRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, sampleSummary("dumps/app.hprof")))

	updated := sampleSummary("dumps/app.hprof")
	updated.InstanceCount = 99999
	require.NoError(t, repo.Save(ctx, updated))

	got, err := repo.GetByDumpKey(ctx, "dumps/app.hprof")
	require.NoError(t, err)
	assert.Equal(t, 99999, got.InstanceCount)

	var count int64
	require.NoError(t, db.Model(&IndexSummary{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestGormSummaryRepository_GetMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormSummaryRepository(db)

	_, err := repo.GetByDumpKey(context.Background(), "nope.hprof")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestGormSummaryRepository_List(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormSummaryRepository(db)
	ctx := context.Background()

	for _, key := range []string{"a.hprof", "b.hprof", "c.hprof"} {
		require.NoError(t, repo.Save(ctx, sampleSummary(key)))
	}

	summaries, err := repo.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "c.hprof", summaries[0].DumpKey)
	assert.Equal(t, "b.hprof", summaries[1].DumpKey)
}
