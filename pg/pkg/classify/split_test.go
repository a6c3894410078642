package classify

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/weston-ai/cloud-etl-postgres-ml/pg/pkg/ident"
	pgkittesting "github.com/weston-ai/cloud-etl-postgres-ml/utils/pkg/testing"
)

func TestPgkit_Classify_SplitTable(t *testing.T) {
	t.Parallel()

	log := pgkittesting.NewLogger()

	t.Run("creates both tables", func(t *testing.T) {
		t.Parallel()

		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(regexp.QuoteMeta(
			`CREATE TABLE IF NOT EXISTS "visits_time_invariant" AS SELECT DISTINCT ON ("patient_id") "patient_id", "dob", "sex" FROM "visits" ORDER BY "patient_id"`,
		)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta(
			`CREATE TABLE IF NOT EXISTS "visits_time_variant" AS SELECT "patient_id", "heart_rate", "notes" FROM "visits"`,
		)).WillReturnResult(sqlmock.NewResult(0, 0))

		res, err := SplitTable(context.Background(), SplitConfig{
			Logger:    log,
			DB:        db,
			Table:     "visits",
			EntityKey: []string{"patient_id"},
			Classification: Classification{
				"dob":        TimeInvariant,
				"sex":        TimeInvariant,
				"heart_rate": TimeVariant,
				"notes":      Indeterminate,
			},
			ColumnOrder: []string{"dob", "sex", "heart_rate", "notes"},
		})
		require.NoError(t, err)
		require.Equal(t, "visits_time_invariant", res.InvariantTable)
		require.Equal(t, "visits_time_variant", res.VariantTable)
		require.Equal(t, []string{"dob", "sex"}, res.Invariant)
		require.Equal(t, []string{"heart_rate", "notes"}, res.Variant)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("skips invariant table when nothing is invariant", func(t *testing.T) {
		t.Parallel()

		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(regexp.QuoteMeta(`"obs_time_variant"`)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		res, err := SplitTable(context.Background(), SplitConfig{
			Logger:         log,
			DB:             db,
			Table:          "obs",
			EntityKey:      []string{"id"},
			Classification: Classification{"v": TimeVariant},
			ColumnOrder:    []string{"v"},
		})
		require.NoError(t, err)
		require.Empty(t, res.InvariantTable)
		require.Equal(t, "obs_time_variant", res.VariantTable)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects unsafe identifiers before issuing DDL", func(t *testing.T) {
		t.Parallel()

		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		_, err = SplitTable(context.Background(), SplitConfig{
			Logger:         log,
			DB:             db,
			Table:          `visits"; DROP TABLE visits; --`,
			EntityKey:      []string{"id"},
			Classification: Classification{"v": TimeVariant},
			ColumnOrder:    []string{"v"},
		})
		var identErr *ident.Error
		require.ErrorAs(t, err, &identErr)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects source names that overflow the derived table name", func(t *testing.T) {
		t.Parallel()

		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		long := "t"
		for len(long) <= ident.MaxLength-len("_time_invariant") {
			long += "t"
		}
		_, err = SplitTable(context.Background(), SplitConfig{
			Logger:         log,
			DB:             db,
			Table:          long,
			EntityKey:      []string{"id"},
			Classification: Classification{"v": TimeInvariant},
			ColumnOrder:    []string{"v"},
		})
		require.Error(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
