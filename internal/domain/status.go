package domain

type TransactionStatus string

const (
	StatusPending    TransactionStatus = "pending"
	StatusCompleted  TransactionStatus = "completed"
	StatusFailed     TransactionStatus = "failed"
	StatusProcessing TransactionStatus = "processing"
	StatusRefunded   TransactionStatus = "refunded"
	StatusReversed   TransactionStatus = "reversed"
)

// Nothing ever moves back to pending.
var transitions = map[TransactionStatus][]TransactionStatus{
	StatusPending:    {StatusCompleted, StatusFailed, StatusProcessing},
	StatusProcessing: {StatusRefunded, StatusReversed},
}

// CanTransition reports whether from -> to is an edge of the transaction state machine.
func CanTransition(from, to TransactionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s TransactionStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusRefunded, StatusReversed:
		return true
	}
	return false
}
