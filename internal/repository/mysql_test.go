package repository

import (
	"context"
	"io"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	apperrors "github.com/heap-analysis/pkg/errors"
)

// setupMockDB opens a GORM MySQL session over a sqlmock connection so
// driver-level failures can be scripted.
func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      conn,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return db, mock
}

func TestGormSummaryRepository_List_MySQL(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewGormSummaryRepository(db)

	rows := sqlmock.NewRows([]string{"id", "dump_key", "class_count", "instance_count"}).
		AddRow(int64(2), "b.hprof", 10, 100).
		AddRow(int64(1), "a.hprof", 5, 50)

	mock.ExpectQuery("SELECT \\* FROM `heap_index_summary`").WillReturnRows(rows)

	summaries, err := repo.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "b.hprof", summaries[0].DumpKey)
	assert.Equal(t, 10, summaries[0].ClassCount)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormSummaryRepository_SaveDriverError(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewGormSummaryRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `heap_index_summary`").WillReturnError(io.ErrUnexpectedEOF)
	mock.ExpectRollback()

	err := repo.Save(context.Background(), sampleSummary("broken.hprof"))
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeDatabaseError, apperrors.GetErrorCode(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}
