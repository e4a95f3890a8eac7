package store

import (
	"fmt"
	"time"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres"
	"github.com/pkg/errors"

	"github.com/krich11/qdayscanner/internal/logs"
)

var log = logs.Get(logs.TagStore)

// Config carries the Postgres connection parameters. The entry point opens
// one Store (one gorm connection pool) from it and shares that Store
// between the writer and the supervisor's startup and progress reads.
type Config struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
}

func (c Config) dsn() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		c.Host, c.Port, c.Name, c.User, c.Password)
}

// URL returns a postgres:// connection string suitable for golang-migrate.
func (c Config) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Name)
}

// Store wraps a single gorm connection.
type Store struct {
	db *gorm.DB
}

// Connect opens a Postgres connection.
func Connect(cfg Config) (*Store, error) {
	db, err := gorm.Open("postgres", cfg.dsn())
	if err != nil {
		return nil, errors.Wrap(err, "connect to database")
	}
	return &Store{db: db}, nil
}

// NewFromDB wraps an already-open gorm connection, for tests that drive a
// Store against sqlmock rather than a live Postgres instance.
func NewFromDB(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying *gorm.DB for callers that need raw query
// composition (Where/Preload/Joins), following the database.DB() accessor
// idiom of the apiserver package this store is grounded on.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// AutoMigrate creates/updates the four tables from the Go struct tags.
// store/migrations provides the declarative SQL equivalent for operators
// who prefer golang-migrate; either is sufficient, schema bootstrap itself
// being out of the core's scope.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&Address{}, &Transaction{}, &AddressBlock{}, &ScanProgress{}).Error
}

// hasRecordNotFoundError mirrors apiserver/utils.HasDBRecordNotFoundError:
// gorm reports "not found" as a sentinel error on *gorm.DB rather than a
// distinguishable return value.
func hasRecordNotFoundError(result *gorm.DB) bool {
	return result.RecordNotFound() && len(result.GetErrors()) == 1
}

// LookupAddressID implements upsert strategy 1: SELECT id WHERE
// address_key = ?. Returns (0, false, nil) when absent.
func (s *Store) LookupAddressID(addressKey string) (uint64, bool, error) {
	var addr Address
	result := s.db.Select("id").Where("address_key = ?", addressKey).First(&addr)
	if hasRecordNotFoundError(result) {
		return 0, false, nil
	}
	if result.Error != nil {
		return 0, false, errors.Wrapf(result.Error, "lookup address %s", addressKey)
	}
	return addr.ID, true, nil
}

// TouchAddress implements upsert strategy 2: UPDATE last_seen_block =
// GREATEST(last_seen_block, incoming) for an address known to exist.
func (s *Store) TouchAddress(id uint64, lastSeenBlock int) error {
	result := s.db.Exec(
		`UPDATE p2pk_addresses SET last_seen_block = GREATEST(last_seen_block, ?) WHERE id = ?`,
		lastSeenBlock, id)
	return errors.Wrapf(result.Error, "touch address id=%d", id)
}

// InsertAddressReturningID implements upsert strategy 3: a plain INSERT,
// relying on the caller to treat a unique-constraint violation as a signal
// to fall through to the conflict-aware upsert.
func (s *Store) InsertAddressReturningID(addr Address) (uint64, error) {
	var id uint64
	row := s.db.CommonDB().QueryRow(
		`INSERT INTO p2pk_addresses (address_key, public_key_hex, first_seen_block, first_seen_txid, last_seen_block)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		addr.AddressKey, addr.PublicKeyHex, addr.FirstSeenBlock, addr.FirstSeenTxID, addr.LastSeenBlock)
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// UpsertAddressOnConflict implements upsert strategy 4: a conflict-aware
// upsert for the race where another flush (or another process) inserted
// the same address_key between strategies 1 and 3.
func (s *Store) UpsertAddressOnConflict(addr Address) (uint64, error) {
	var id uint64
	row := s.db.CommonDB().QueryRow(
		`INSERT INTO p2pk_addresses (address_key, public_key_hex, first_seen_block, first_seen_txid, last_seen_block)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (address_key) DO UPDATE
		   SET last_seen_block = GREATEST(p2pk_addresses.last_seen_block, EXCLUDED.last_seen_block)
		 RETURNING id`,
		addr.AddressKey, addr.PublicKeyHex, addr.FirstSeenBlock, addr.FirstSeenTxID, addr.LastSeenBlock)
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// InsertTransactions performs one multi-row insert of transaction events
// inside the caller-supplied transaction.
func (s *Store) InsertTransactions(tx *gorm.DB, rows []Transaction) error {
	if len(rows) == 0 {
		return nil
	}
	query, args := buildTransactionInsert(rows)
	return errors.Wrap(tx.Exec(query, args...).Error, "bulk insert transactions")
}

// InsertAddressBlocks performs one multi-row insert of block-mirror events.
func (s *Store) InsertAddressBlocks(tx *gorm.DB, rows []AddressBlock) error {
	if len(rows) == 0 {
		return nil
	}
	query, args := buildAddressBlockInsert(rows)
	return errors.Wrap(tx.Exec(query, args...).Error, "bulk insert address blocks")
}

// Begin starts a transaction used to scope one batch flush (insert
// transactions + insert address blocks + commit atomically).
func (s *Store) Begin() *gorm.DB {
	return s.db.Begin()
}

func buildTransactionInsert(rows []Transaction) (string, []interface{}) {
	query := "INSERT INTO p2pk_transactions (txid, block_height, block_time, address_id, is_input, amount_satoshi) VALUES "
	args := make([]interface{}, 0, len(rows)*6)
	for i, r := range rows {
		if i > 0 {
			query += ", "
		}
		base := i * 6
		query += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4, base+5, base+6)
		args = append(args, r.TxID, r.BlockHeight, r.BlockTime, r.AddressID, r.IsInput, r.AmountSatoshi)
	}
	return query, args
}

func buildAddressBlockInsert(rows []AddressBlock) (string, []interface{}) {
	query := "INSERT INTO p2pk_address_blocks (address_id, block_height, is_input, amount_satoshi, txid) VALUES "
	args := make([]interface{}, 0, len(rows)*5)
	for i, r := range rows {
		if i > 0 {
			query += ", "
		}
		base := i * 5
		query += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4, base+5)
		args = append(args, r.AddressID, r.BlockHeight, r.IsInput, r.AmountSatoshi, r.TxID)
	}
	return query, args
}

// EnsureScanProgress creates the ScanProgress row for scannerID if absent,
// at startHeight - 1, so LastScannedBlock + 1 is the correct resume point.
func (s *Store) EnsureScanProgress(scannerID string, startHeight int) (*ScanProgress, error) {
	var prog ScanProgress
	result := s.db.Where("scanner_id = ?", scannerID).First(&prog)
	if hasRecordNotFoundError(result) {
		prog = ScanProgress{
			ScannerID:        scannerID,
			LastScannedBlock: startHeight - 1,
			TotalScanned:     0,
			LastUpdated:      time.Now().UTC(),
		}
		if err := s.db.Create(&prog).Error; err != nil {
			return nil, errors.Wrap(err, "create scan progress row")
		}
		return &prog, nil
	}
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "read scan progress row")
	}
	return &prog, nil
}

// GetScanProgress reads the current progress row for scannerID, if any.
func (s *Store) GetScanProgress(scannerID string) (*ScanProgress, error) {
	var prog ScanProgress
	result := s.db.Where("scanner_id = ?", scannerID).First(&prog)
	if hasRecordNotFoundError(result) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "read scan progress row")
	}
	return &prog, nil
}

// UpdateScanProgress advances last_scanned_block/total_scanned.
// last_scanned_block must only ever advance on a successful writer commit;
// callers must not call this with a height lower than the stored one.
func (s *Store) UpdateScanProgress(scannerID string, lastScannedBlock int, totalScanned int64) error {
	result := s.db.Model(&ScanProgress{}).
		Where("scanner_id = ?", scannerID).
		Updates(map[string]interface{}{
			"last_scanned_block": lastScannedBlock,
			"total_scanned":      totalScanned,
			"last_updated":       time.Now().UTC(),
		})
	return errors.Wrapf(result.Error, "update scan progress for %s", scannerID)
}
