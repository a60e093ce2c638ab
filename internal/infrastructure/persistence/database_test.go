package persistence

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/backoffice/internal/domain/activity"
	"github.com/erp/backoffice/internal/infrastructure/config"
	"github.com/erp/backoffice/internal/infrastructure/migration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newMockDatabase creates a Database instance with a mocked SQL connection
func newMockDatabase(t *testing.T) (*Database, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return &Database{DB: gormDB}, mock, mockDB
}

// newSQLiteDatabase opens a migrated journal in a temporary file
func newSQLiteDatabase(t *testing.T) *Database {
	t.Helper()
	cfg := &config.DatabaseConfig{
		Driver:       "sqlite",
		Path:         filepath.Join(t.TempDir(), "journal.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}
	require.NoError(t, migration.Apply(cfg, nil))
	db, err := NewDatabase(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNewDatabase_UnsupportedDriver(t *testing.T) {
	_, err := NewDatabase(&config.DatabaseConfig{Driver: "oracle"}, nil)
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestDatabase_Ping(t *testing.T) {
	t.Run("successful ping", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectPing()
		assert.NoError(t, db.Ping())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("sqlite", func(t *testing.T) {
		assert.NoError(t, newSQLiteDatabase(t).Ping())
	})
}

func TestGormActivityRepository_SQLite(t *testing.T) {
	db := newSQLiteDatabase(t)
	repo := NewGormActivityRepository(db.DB)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	records := []*activity.Record{
		activity.NewRecord("BRANCHES_KEY", "update", activity.OutcomeSuccess).WithEntity(1),
		activity.NewRecord("BRANCHES_KEY", "delete", activity.OutcomeRolledBack).WithEntity(2),
		activity.NewRecord("CLOTHES_TRANSFERS_KEY", "approve-partial", activity.OutcomeSuccess).WithEntity(9),
		activity.NewRecord("BRANCHES_KEY", "create", activity.OutcomeSuccess),
	}
	for i, r := range records {
		r.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		r.Duration = 150 * time.Millisecond
		r.RequestID = "req-1"
		require.NoError(t, repo.Save(ctx, r))
	}

	t.Run("list newest first", func(t *testing.T) {
		got, err := repo.List(ctx, activity.Filter{Tag: "BRANCHES_KEY"})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "create", got[0].Action)
		assert.Nil(t, got[0].EntityID)
		assert.Equal(t, "update", got[2].Action)
		require.NotNil(t, got[2].EntityID)
		assert.Equal(t, int64(1), *got[2].EntityID)
		assert.Equal(t, 150*time.Millisecond, got[2].Duration)
		assert.Equal(t, records[0].ID, got[2].ID)
	})

	t.Run("filter by outcome and limit", func(t *testing.T) {
		got, err := repo.List(ctx, activity.Filter{Outcome: activity.OutcomeSuccess, Limit: 2})
		require.NoError(t, err)
		require.Len(t, got, 2)
		for _, r := range got {
			assert.Equal(t, activity.OutcomeSuccess, r.Outcome)
		}
	})

	t.Run("count by outcome", func(t *testing.T) {
		counts, err := repo.CountByOutcome(ctx, "BRANCHES_KEY")
		require.NoError(t, err)
		assert.Equal(t, int64(2), counts[activity.OutcomeSuccess])
		assert.Equal(t, int64(1), counts[activity.OutcomeRolledBack])

		all, err := repo.CountByOutcome(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, int64(3), all[activity.OutcomeSuccess])
	})

	t.Run("nil record", func(t *testing.T) {
		assert.Error(t, repo.Save(ctx, nil))
	})

	t.Run("prune old records", func(t *testing.T) {
		removed, err := repo.DeleteBefore(ctx, base.Add(2*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(2), removed)

		left, err := repo.List(ctx, activity.Filter{})
		require.NoError(t, err)
		assert.Len(t, left, 2)
	})
}

func TestGormActivityRepository_Postgres(t *testing.T) {
	t.Run("list applies filters", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()
		repo := NewGormActivityRepository(db.DB)

		mock.ExpectQuery(`SELECT \* FROM "backoffice_activities" WHERE tag = \$1 AND outcome = \$2 ORDER BY created_at DESC LIMIT`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "tag", "action", "outcome", "duration_ms", "created_at"}).
				AddRow("0b8a3f4e-3c1a-4a4c-9d7e-2f6f0a1b2c3d", "ROLES_KEY", "delete", "rolled_back", 20, time.Now()))

		got, err := repo.List(context.Background(), activity.Filter{Tag: "ROLES_KEY", Outcome: activity.OutcomeRolledBack, Limit: 1000})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, activity.OutcomeRolledBack, got[0].Outcome)
		assert.Equal(t, 20*time.Millisecond, got[0].Duration)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("count groups by outcome", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()
		repo := NewGormActivityRepository(db.DB)

		mock.ExpectQuery(`SELECT outcome, COUNT\(\*\) AS total FROM "backoffice_activities" WHERE tag = \$1 GROUP BY "?outcome"?`).
			WithArgs("ROLES_KEY").
			WillReturnRows(sqlmock.NewRows([]string{"outcome", "total"}).
				AddRow("success", 4).
				AddRow("rolled_back", 1))

		counts, err := repo.CountByOutcome(context.Background(), "ROLES_KEY")
		require.NoError(t, err)
		assert.Equal(t, int64(4), counts[activity.OutcomeSuccess])
		assert.Equal(t, int64(1), counts[activity.OutcomeRolledBack])
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
