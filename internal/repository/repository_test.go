package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/arrestlog/constants"
	"github.com/joseph-ayodele/arrestlog/internal/common"
	"github.com/joseph-ayodele/arrestlog/internal/entity"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, Config{Driver: DriverSQLite, DSN: "file::memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(nil) })
	require.NoError(t, Migrate(ctx, db))
	return db
}

func sampleResult(id uuid.UUID, started time.Time) entity.Result {
	return entity.Result{
		RunID:     id,
		Strategy:  constants.StrategyBlocks,
		Documents: 3,
		Records: []entity.Record{
			{constants.CaseNumber: "1700123", constants.DateOfArrest: "01/04/17 12:45", constants.Sex: "M"},
			{constants.CaseNumber: "1700124", constants.Location: ""},
			{constants.Crimes: "23152(A) VC DUI"},
		},
		Dropped:   map[string]int{"empty_block": 2, "missing_date_arrest": 1},
		Ambiguous: 1,
		StartedAt: started,
		Duration:  1500 * time.Millisecond,
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "mysql"}, nil)
	require.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Migrate(context.Background(), db))
	assert.Equal(t, "sqlite3", db.Dialect())
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, HealthCheck(context.Background(), db, time.Second, nil))
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository(openTestDB(t), nil)

	id := uuid.New()
	started := time.Date(2017, 1, 4, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Start(ctx, entity.ExtractRun{ID: id, Strategy: constants.StrategyBlocks, Source: "bart/2017", StartedAt: started}))

	run, err := repo.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, string(constants.RunStatusRunning), run.Status)
	assert.Equal(t, "bart/2017", run.Source)
	assert.True(t, started.Equal(run.StartedAt))
	assert.Nil(t, run.FinishedAt)

	require.NoError(t, repo.Finish(ctx, sampleResult(id, started)))

	run, err = repo.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, string(constants.RunStatusOK), run.Status)
	assert.Equal(t, 3, run.Documents)
	assert.Equal(t, 3, run.Records)
	assert.Equal(t, 3, run.Dropped)
	assert.Equal(t, map[string]int{"empty_block": 2, "missing_date_arrest": 1}, run.DroppedReasons)
	assert.Equal(t, 1, run.Ambiguous)
	require.NotNil(t, run.FinishedAt)
	assert.True(t, started.Add(1500*time.Millisecond).Equal(*run.FinishedAt))

	recs, err := repo.ListRecords(ctx, id.String())
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, entity.Record{constants.CaseNumber: "1700123", constants.DateOfArrest: "01/04/17 12:45", constants.Sex: "M"}, recs[0])
	v, ok := recs[1].Get(constants.Location)
	assert.True(t, ok, "empty values are kept")
	assert.Equal(t, "", v)
	_, ok = recs[1].Get(constants.Sex)
	assert.False(t, ok, "absent values stay absent")
	assert.Equal(t, "23152(A) VC DUI", recs[2][constants.Crimes])
}

func TestFinish_ManyRecords(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository(openTestDB(t), nil)
	id := uuid.New()
	require.NoError(t, repo.Start(ctx, entity.ExtractRun{ID: id, Strategy: constants.StrategyFields, Source: "dir"}))

	res := entity.Result{RunID: id, StartedAt: time.Now()}
	for i := 0; i < insertBatch+7; i++ {
		res.Records = append(res.Records, entity.Record{constants.CaseNumber: uuid.NewString()})
	}
	require.NoError(t, repo.Finish(ctx, res))

	recs, err := repo.ListRecords(ctx, id.String())
	require.NoError(t, err)
	require.Len(t, recs, insertBatch+7)
	assert.Equal(t, res.Records[insertBatch], recs[insertBatch])
}

func TestFinish_UnknownRun(t *testing.T) {
	repo := NewRunRepository(openTestDB(t), nil)
	err := repo.Finish(context.Background(), sampleResult(uuid.New(), time.Now()))
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestFail(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository(openTestDB(t), nil)
	id := uuid.New()
	require.NoError(t, repo.Start(ctx, entity.ExtractRun{ID: id, Strategy: constants.StrategyBlocks, Source: "dir"}))
	require.NoError(t, repo.Fail(ctx, id, "source unavailable"))

	run, err := repo.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, string(constants.RunStatusFailed), run.Status)
	require.NotNil(t, run.ErrorMessage)
	assert.Equal(t, "source unavailable", *run.ErrorMessage)
	assert.NotNil(t, run.FinishedAt)
}

func TestListRuns_NewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository(openTestDB(t), nil)
	base := time.Date(2020, 5, 1, 0, 0, 0, 0, time.UTC)
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		id := uuid.New()
		ids = append(ids, id)
		// sub-second offsets exercise the fixed-width layout
		started := base.Add(time.Duration(i) * 100 * time.Millisecond)
		require.NoError(t, repo.Start(ctx, entity.ExtractRun{ID: id, Strategy: constants.StrategyBlocks, Source: "s", StartedAt: started}))
	}

	runs, err := repo.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)

	all, err := repo.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestGetRun_NotFound(t *testing.T) {
	_, err := NewRunRepository(openTestDB(t), nil).GetRun(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestListRecords_InvalidID(t *testing.T) {
	_, err := NewRunRepository(openTestDB(t), nil).ListRecords(context.Background(), "run-7")
	require.ErrorIs(t, err, common.ErrInvalidInput)
}

// TestPostgres_Integration requires a reachable database in TEST_POSTGRES_URL.
func TestPostgres_Integration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_URL")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_URL not set")
	}
	ctx := context.Background()
	db, err := Open(ctx, Config{Driver: DriverPostgres, DSN: dsn, DialTimeout: 5 * time.Second}, nil)
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	defer db.Close(nil)
	require.NoError(t, HealthCheck(ctx, db, 5*time.Second, nil))
	require.NoError(t, Migrate(ctx, db))

	repo := NewRunRepository(db, nil)
	id := uuid.New()
	require.NoError(t, repo.Start(ctx, entity.ExtractRun{ID: id, Strategy: constants.StrategyBlocks, Source: "it"}))
	require.NoError(t, repo.Finish(ctx, sampleResult(id, time.Now())))
	recs, err := repo.ListRecords(ctx, id.String())
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}
