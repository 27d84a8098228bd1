package database

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "stock_snapshots",
		Columns:      []string{"ticker", "price"},
		ConflictKeys: []string{"ticker"},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsertTx_Validation(t *testing.T) {
	_, err := BulkUpsertTx(context.Background(), nil, UpsertConfig{
		Table:        "stock_snapshots",
		ConflictKeys: []string{"ticker"},
	}, [][]any{{"A"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")

	_, err = BulkUpsertTx(context.Background(), nil, UpsertConfig{
		Table:   "stock_snapshots",
		Columns: []string{"ticker", "price"},
	}, [][]any{{"A", 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cfg := UpsertConfig{
		Table:        "stock_snapshots",
		Columns:      []string{"ticker", "data_date", "price"},
		ConflictKeys: []string{"ticker", "data_date"},
		TouchColumn:  "updated_at",
	}

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_stock_snapshots"}, cfg.Columns).WillReturnResult(2)
	mock.ExpectExec("INSERT INTO").WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, cfg, [][]any{{"A", "2026-03-02", 1}, {"B", "2026-03-02", 2}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_CopyFailureRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cfg := UpsertConfig{
		Table:        "stock_snapshots",
		Columns:      []string{"ticker", "price"},
		ConflictKeys: []string{"ticker"},
	}

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{cfg.TempTable()}, cfg.Columns).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, cfg, [][]any{{"A", 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into temp table")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSQL(t *testing.T) {
	sql := upsertSQL(UpsertConfig{
		Table:        "stock_snapshots",
		Columns:      []string{"ticker", "data_date", "price", "passed_profiles"},
		ConflictKeys: []string{"ticker", "data_date"},
		SetExprs:     map[string]string{"passed_profiles": "EXCLUDED.passed_profiles || '{}'"},
		TouchColumn:  "updated_at",
	})

	assert.Equal(t,
		`INSERT INTO "stock_snapshots" ("ticker", "data_date", "price", "passed_profiles") `+
			`SELECT "ticker", "data_date", "price", "passed_profiles" FROM "_tmp_upsert_stock_snapshots" `+
			`ON CONFLICT ("ticker", "data_date") DO UPDATE SET "price" = EXCLUDED."price", `+
			`"passed_profiles" = EXCLUDED.passed_profiles || '{}', "updated_at" = now()`,
		sql)
}

func TestUpsertSQL_KeysOnly(t *testing.T) {
	sql := upsertSQL(UpsertConfig{
		Table:        "stock_snapshots",
		Columns:      []string{"ticker", "data_date"},
		ConflictKeys: []string{"ticker", "data_date"},
		UpdateCols:   []string{},
	})
	assert.Contains(t, sql, "DO NOTHING")
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", `"simple"`},
		{"public.stock_snapshots", `"public"."stock_snapshots"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeTable(tt.input))
		})
	}
}
