package types

// TransactionStatus tracks a position's life from intent to flat.
type TransactionStatus string

const (
	TxWaiting TransactionStatus = "WAITING"
	TxOpened  TransactionStatus = "OPENED"
	TxClosing TransactionStatus = "CLOSING"
	TxClosed  TransactionStatus = "CLOSED"
)

// IsActive reports whether the transaction still blocks a new position
// for the same (expert, symbol) pair.
func (s TransactionStatus) IsActive() bool {
	return s == TxWaiting || s == TxOpened
}
