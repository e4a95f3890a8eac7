// Package pipeline implements the staged producer/consumer scanning
// graph: Distributor, Worker Pool, Write-Behind Buffer, Pause Controller,
// and Supervisor. Grounded directly on the hydra-mode scanner
// (hydra_mode_scanner.py): its distributor/worker functions and
// HydraModeDatabaseManager are the literal ancestor of the types and
// control flow here, reimplemented as goroutines/channels guarded by
// internal/panics.
package pipeline

// EventKind tags a WriteEvent with its logical row kind, replacing the
// dynamic event dicts of the original scanner with a tagged-variant type.
type EventKind int

const (
	// KindAddressSeen carries an address sighting: used to resolve or
	// create the owning P2pkAddress row before any dependent row.
	KindAddressSeen EventKind = iota
	// KindTxEvent carries a P2pkTransaction row, pending address_id resolution.
	KindTxEvent
	// KindBlockEvent carries a P2pkAddressBlock row, pending address_id resolution.
	KindBlockEvent
)

func (k EventKind) String() string {
	switch k {
	case KindAddressSeen:
		return "ADDRESS_SEEN"
	case KindTxEvent:
		return "TX_EVENT"
	case KindBlockEvent:
		return "BLOCK_EVENT"
	default:
		return "UNKNOWN"
	}
}

// WriteEvent is the unit the worker pool posts to the write queue. Every
// P2PK sighting produces one KindAddressSeen, one KindTxEvent, and one
// KindBlockEvent, all sharing AddressKey so the writer can join them.
type WriteEvent struct {
	Kind EventKind

	AddressKey   string // always set; the join key for this sighting
	PublicKeyHex string // set on KindAddressSeen

	TxID          string
	BlockHeight   int
	BlockTime     int64
	IsInput       bool
	AmountSatoshi int64
}
