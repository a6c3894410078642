package load_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"

	"github.com/weston-ai/cloud-etl-postgres-ml/etl/pkg/load"
	"github.com/weston-ai/cloud-etl-postgres-ml/etl/pkg/stage"
	"github.com/weston-ai/cloud-etl-postgres-ml/pg/pkg/classify"
	"github.com/weston-ai/cloud-etl-postgres-ml/pg/pkg/pgtest"
	pgkittesting "github.com/weston-ai/cloud-etl-postgres-ml/utils/pkg/testing"
)

var testDB *pgtest.DB

func TestMain(m *testing.M) {
	ctx := context.Background()
	log := slog.Default()

	var err error
	testDB, err = pgtest.NewDB(ctx, log, nil)
	if err != nil {
		slog.Error("failed to start PostgreSQL container", "error", err)
		os.Exit(1)
	}

	code := m.Run()

	testDB.Close()
	os.Exit(code)
}

func newLoader(t *testing.T) *load.Loader {
	t.Helper()

	pool := pgtest.NewTestPool(t, testDB)
	loader, err := load.New(load.Config{
		Logger: pgkittesting.NewLogger(),
		Pool:   pool,
		Clock:  clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)
	return loader
}

func migrateUp(t *testing.T) {
	t.Helper()

	db := pgtest.NewTestSQLDB(t, testDB)
	goose.SetBaseFS(load.EmbedMigrations)
	require.NoError(t, goose.SetDialect("postgres"))
	require.NoError(t, goose.Up(db, "migrations"))
}

func TestPgkit_Load_EnsureTableAndCopyRows(t *testing.T) {
	ctx := context.Background()
	loader := newLoader(t)

	cols := []stage.Column{
		{Name: "patient_id", SQLType: stage.TypeBigint},
		{Name: "name", SQLType: stage.TypeText},
		{Name: "score", SQLType: stage.TypeDouble},
		{Name: "visit_date", SQLType: stage.TypeTimestamp},
	}
	require.NoError(t, loader.EnsureTable(ctx, "visits_load_test", cols))
	// Second call is a no-op.
	require.NoError(t, loader.EnsureTable(ctx, "visits_load_test", cols))

	table, err := classify.NewTable("patient_id", "name", "score", "visit_date")
	require.NoError(t, err)
	require.NoError(t, table.AppendRow(int64(1), "alice", 0.5, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, table.AppendRow(int64(2), "bob", nil, time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC)))

	n, err := loader.CopyRows(ctx, "visits_load_test", table.Columns(), table.Rows())
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	pool := pgtest.NewTestPool(t, testDB)
	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM visits_load_test`).Scan(&count))
	require.Equal(t, 2, count)

	var score *float64
	require.NoError(t, pool.QueryRow(ctx, `SELECT score FROM visits_load_test WHERE patient_id = 2`).Scan(&score))
	require.Nil(t, score)
}

func TestPgkit_Load_ClassifyLoadedRowsOverPgx(t *testing.T) {
	ctx := context.Background()
	loader := newLoader(t)

	cols := []stage.Column{
		{Name: "cust", SQLType: stage.TypeBigint},
		{Name: "name", SQLType: stage.TypeText},
		{Name: "city", SQLType: stage.TypeText},
	}
	require.NoError(t, loader.EnsureTable(ctx, "cust_classify_test", cols))

	table, err := classify.NewTable("cust", "name", "city")
	require.NoError(t, err)
	require.NoError(t, table.AppendRow(int64(1), "alice", "denver"))
	require.NoError(t, table.AppendRow(int64(1), "alice", "boulder"))
	require.NoError(t, table.AppendRow(int64(2), "bob", "austin"))
	require.NoError(t, table.AppendRow(int64(2), "bob", "austin"))

	_, err = loader.CopyRows(ctx, "cust_classify_test", table.Columns(), table.Rows())
	require.NoError(t, err)

	pool := pgtest.NewTestPool(t, testDB)
	rows, err := pool.Query(ctx, `SELECT cust, name, city FROM cust_classify_test`)
	require.NoError(t, err)
	defer rows.Close()

	got, err := classify.ClassifyColumns(classify.NewPgxRows(rows), []string{"cust"})
	require.NoError(t, err)
	require.Equal(t, classify.TimeInvariant, got["name"])
	require.Equal(t, classify.TimeVariant, got["city"])
}

func TestPgkit_Load_EnsureTable_RejectsUnsafeIdentifiers(t *testing.T) {
	ctx := context.Background()
	loader := newLoader(t)

	err := loader.EnsureTable(ctx, `visits"; DROP TABLE users; --`, []stage.Column{{Name: "a", SQLType: stage.TypeText}})
	require.Error(t, err)

	err = loader.EnsureTable(ctx, "visits_ok", []stage.Column{{Name: "bad-col", SQLType: stage.TypeText}})
	require.Error(t, err)
}

func TestPgkit_Load_CopyRows_RejectsUnsafeIdentifiers(t *testing.T) {
	ctx := context.Background()
	loader := newLoader(t)

	table, err := classify.NewTable("a")
	require.NoError(t, err)

	_, err = loader.CopyRows(ctx, "1bad", table.Columns(), table.Rows())
	require.Error(t, err)
}

func TestPgkit_Load_RecordRun(t *testing.T) {
	ctx := context.Background()
	migrateUp(t)
	loader := newLoader(t)

	started := loader.Now()
	run := load.Run{
		ID:          uuid.New(),
		SourceFile:  "visits.csv",
		TargetTable: "visits_load_test",
		RowCount:    2,
		StartedAt:   started,
		FinishedAt:  started.Add(3 * time.Second),
	}
	require.NoError(t, loader.RecordRun(ctx, run))

	pool := pgtest.NewTestPool(t, testDB)
	var (
		sourceFile string
		rowCount   int64
	)
	err := pool.QueryRow(ctx,
		`SELECT source_file, row_count FROM etl_runs WHERE id = $1`, run.ID,
	).Scan(&sourceFile, &rowCount)
	require.NoError(t, err)
	require.Equal(t, "visits.csv", sourceFile)
	require.Equal(t, int64(2), rowCount)
}

func TestPgkit_Load_ConfigValidate(t *testing.T) {
	t.Parallel()

	cfg := load.Config{}
	require.Error(t, cfg.Validate())

	_, err := load.New(load.Config{Logger: pgkittesting.NewLogger()})
	require.Error(t, err)
}
