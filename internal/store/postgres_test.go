package store

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/procdoc/internal/model"
)

func TestRebind(t *testing.T) {
	assert.Equal(t, `SELECT 1`, rebind(`SELECT 1`))
	assert.Equal(t,
		`INSERT INTO t (a, b) VALUES ($1, $2)`,
		rebind(`INSERT INTO t (a, b) VALUES (?, ?)`))
	assert.Equal(t,
		`UPDATE t SET a = $1 WHERE b = $2 AND c IN ($3, $4)`,
		rebind(`UPDATE t SET a = ? WHERE b = ? AND c IN (?, ?)`))
}

func TestPostgresStore_TransitionStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresFromPool(mock)

	mock.ExpectExec(`UPDATE documents SET processing_status`).
		WithArgs("extracting", pgxmock.AnyArg(), "sess", "doc-1", "uploaded", "failed").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = store.TransitionStatus(context.Background(), "sess", "doc-1",
		model.StatusExtracting, model.StatusUploaded, model.StatusFailed)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_TransitionStatus_Conflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresFromPool(mock)

	mock.ExpectExec(`UPDATE documents SET processing_status`).
		WithArgs("extracting", pgxmock.AnyArg(), "sess", "doc-1", "uploaded").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM documents`).
		WithArgs("sess", "doc-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))

	err = store.TransitionStatus(context.Background(), "sess", "doc-1",
		model.StatusExtracting, model.StatusUploaded)

	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_TransitionStatus_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresFromPool(mock)

	mock.ExpectExec(`UPDATE documents SET processing_status`).
		WithArgs("failed", pgxmock.AnyArg(), "sess", "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM documents`).
		WithArgs("sess", "missing").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))

	err = store.TransitionStatus(context.Background(), "sess", "missing", model.StatusFailed)

	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteDocument(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresFromPool(mock)

	mock.ExpectExec(`DELETE FROM documents`).
		WithArgs("sess", "doc-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, store.DeleteDocument(context.Background(), "sess", "doc-1"))

	mock.ExpectExec(`DELETE FROM documents`).
		WithArgs("sess", "gone").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	assert.ErrorIs(t, store.DeleteDocument(context.Background(), "sess", "gone"), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertLineItems(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresFromPool(mock)

	lineItemArgs := make([]interface{}, 28)
	for i := range lineItemArgs {
		lineItemArgs[i] = pgxmock.AnyArg()
	}
	mock.ExpectExec(`INSERT INTO line_items`).
		WithArgs(lineItemArgs...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO line_items`).
		WithArgs(lineItemArgs...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	items := []model.LineItem{
		{DocumentID: "doc-1", ProductName: "Router"},
		{DocumentID: "doc-1", ProductName: "Firewall"},
	}
	require.NoError(t, store.InsertLineItems(context.Background(), items))

	// IDs and session are filled in before insert.
	assert.NotEmpty(t, items[0].ID)
	assert.Equal(t, model.DefaultSessionID, items[0].SessionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReinforceFieldMapping_New(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresFromPool(mock)

	mock.ExpectQuery(`SELECT id, vendor_name, source_column_name`).
		WithArgs("sess", "Acme Federal", "part_number").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO field_mappings`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	m, err := store.ReinforceFieldMapping(context.Background(), "sess", "Acme Federal", "Part No.", "part_number")

	require.NoError(t, err)
	assert.InDelta(t, model.MappingSeedConfidence, m.Confidence, 0.001)
	assert.Equal(t, 1, m.TimesConfirmed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DistinctVendors(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresFromPool(mock)

	mock.ExpectQuery(`SELECT DISTINCT vendor_name FROM documents`).
		WithArgs("sess", 20).
		WillReturnRows(pgxmock.NewRows([]string{"vendor_name"}).
			AddRow("Acme Federal").
			AddRow("Globex Corp"))

	vendors, err := store.DistinctVendors(context.Background(), "sess", 0)

	require.NoError(t, err)
	assert.Equal(t, []string{"Acme Federal", "Globex Corp"}, vendors)
	assert.NoError(t, mock.ExpectationsWereMet())
}
