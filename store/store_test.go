package store

import (
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gormDB, err := gorm.Open("postgres", sqlDB)
	require.NoError(t, err)
	gormDB.LogMode(false)
	return NewFromDB(gormDB), mock
}

func TestLookupAddressID_Found(t *testing.T) {
	s, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"id", "address_key", "public_key_hex", "first_seen_block", "first_seen_txid", "last_seen_block"}).
		AddRow(7, "deadbeef", "02abcd", 100, "txid1", 105)
	mock.ExpectQuery(`SELECT (.+) FROM "p2pk_addresses"`).WillReturnRows(rows)

	id, found, err := s.LookupAddressID("deadbeef")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(7), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLookupAddressID_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT (.+) FROM "p2pk_addresses"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, found, err := s.LookupAddressID("missing")
	require.NoError(t, err)
	require.False(t, found)
}

func TestTouchAddress_IssuesGreatestUpdate(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE p2pk_addresses SET last_seen_block = GREATEST`).
		WithArgs(200, uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.TouchAddress(7, 200)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertAddressReturningID_Success(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`INSERT INTO p2pk_addresses`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	id, err := s.InsertAddressReturningID(Address{AddressKey: "deadbeef", PublicKeyHex: "02abcd"})
	require.NoError(t, err)
	require.Equal(t, uint64(42), id)
}

func TestUpsertAddressOnConflict_Success(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`INSERT INTO p2pk_addresses (.+) ON CONFLICT`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	id, err := s.UpsertAddressOnConflict(Address{AddressKey: "deadbeef", PublicKeyHex: "02abcd"})
	require.NoError(t, err)
	require.Equal(t, uint64(42), id)
}

func TestBuildTransactionInsert_PositionalPlaceholders(t *testing.T) {
	rows := []Transaction{
		{TxID: "a", BlockHeight: 1, BlockTime: 100, AddressID: 1, IsInput: false, AmountSatoshi: 5000},
		{TxID: "b", BlockHeight: 2, BlockTime: 200, AddressID: 2, IsInput: true, AmountSatoshi: 6000},
	}
	query, args := buildTransactionInsert(rows)
	require.Contains(t, query, "($1, $2, $3, $4, $5, $6)")
	require.Contains(t, query, "($7, $8, $9, $10, $11, $12)")
	require.Len(t, args, 12)
}

func TestBuildAddressBlockInsert_PositionalPlaceholders(t *testing.T) {
	rows := []AddressBlock{
		{AddressID: 1, BlockHeight: 1, IsInput: false, AmountSatoshi: 5000, TxID: "a"},
	}
	query, args := buildAddressBlockInsert(rows)
	require.Contains(t, query, "($1, $2, $3, $4, $5)")
	require.Len(t, args, 5)
}

func TestEnsureScanProgress_CreatesWhenAbsent(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT (.+) FROM "scan_progress"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "scan_progress"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	prog, err := s.EnsureScanProgress("hydra", 1000)
	require.NoError(t, err)
	require.Equal(t, 999, prog.LastScannedBlock)
}

func TestUpdateScanProgress_UpdatesColumns(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "scan_progress"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.UpdateScanProgress("hydra", 123, 456)
	require.NoError(t, err)
}

func TestScanProgress_LastUpdatedIsUTC(t *testing.T) {
	prog := ScanProgress{LastUpdated: time.Now().UTC()}
	require.Equal(t, time.UTC, prog.LastUpdated.Location())
}
