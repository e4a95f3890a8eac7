// Package store implements the relational persistence layer: the four
// tables (P2pkAddress, P2pkTransaction, P2pkAddressBlock, ScanProgress)
// and the durable upsert-or-lookup operations the write-behind buffer
// depends on. Grounded on the gorm query/preload idiom of
// apiserver/controllers/transaction.go and the gorm-error helpers of
// apiserver/utils/error.go, with the dialect swapped from MySQL to
// Postgres to support ON CONFLICT upserts.
package store

import "time"

// Address is the P2pkAddress entity: one row per distinct public key ever
// observed. Never deleted; LastSeenBlock only ever moves forward.
type Address struct {
	ID             uint64 `gorm:"primary_key"`
	AddressKey     string `gorm:"unique_index;size:34;not null"`
	PublicKeyHex   string `gorm:"size:130;not null"`
	FirstSeenBlock int    `gorm:"not null"`
	FirstSeenTxID  string `gorm:"size:64;not null"`
	LastSeenBlock  int    `gorm:"not null"`
}

// TableName pins the table name so renaming the Go type never migrates data.
func (Address) TableName() string { return "p2pk_addresses" }

// Transaction is the P2pkTransaction entity: one row per (txid, address,
// direction) sighting.
type Transaction struct {
	ID            uint64 `gorm:"primary_key"`
	TxID          string `gorm:"size:64;not null;index:idx_tx_txid"`
	BlockHeight   int    `gorm:"not null;index:idx_tx_height"`
	BlockTime     int64  `gorm:"not null"`
	AddressID     uint64 `gorm:"not null;index:idx_tx_address"`
	IsInput       bool   `gorm:"not null"`
	AmountSatoshi int64  `gorm:"not null"`
}

func (Transaction) TableName() string { return "p2pk_transactions" }

// AddressBlock is the P2pkAddressBlock entity: a mirror record optimized
// for per-address block-range queries, written in the same batch as its
// Transaction counterpart.
type AddressBlock struct {
	ID            uint64 `gorm:"primary_key"`
	AddressID     uint64 `gorm:"not null;index:idx_ab_address_height"`
	BlockHeight   int    `gorm:"not null;index:idx_ab_address_height"`
	IsInput       bool   `gorm:"not null"`
	AmountSatoshi int64  `gorm:"not null"`
	TxID          string `gorm:"size:64;not null"`
}

func (AddressBlock) TableName() string { return "p2pk_address_blocks" }

// ScanProgress is the durable (scanner_id, last_scanned_block,
// total_scanned) record: at most one row per scanner_id, mutated only by
// the writer task.
type ScanProgress struct {
	ID               uint64 `gorm:"primary_key"`
	ScannerID        string `gorm:"unique_index;size:64;not null"`
	LastScannedBlock int    `gorm:"not null"`
	TotalScanned     int64  `gorm:"not null"`
	LastUpdated      time.Time
}

func (ScanProgress) TableName() string { return "scan_progress" }
