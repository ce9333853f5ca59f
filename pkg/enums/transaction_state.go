package enums

import "fmt"

// TransactionState is the lifecycle of an online payment attempt. A
// transaction leaves pending exactly once.
type TransactionState string

const (
	TransactionStatePending   TransactionState = "pending"
	TransactionStateSucceeded TransactionState = "succeeded"
	TransactionStateFailed    TransactionState = "failed"
	TransactionStateExpired   TransactionState = "expired"
)

var validTransactionStates = []TransactionState{
	TransactionStatePending,
	TransactionStateSucceeded,
	TransactionStateFailed,
	TransactionStateExpired,
}

// String implements fmt.Stringer.
func (s TransactionState) String() string {
	return string(s)
}

// IsValid reports whether the value is a known TransactionState.
func (s TransactionState) IsValid() bool {
	for _, candidate := range validTransactionStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the state permits no further transitions.
func (s TransactionState) IsTerminal() bool {
	return s == TransactionStateSucceeded || s == TransactionStateFailed || s == TransactionStateExpired
}

// ParseTransactionState converts raw input into a TransactionState.
func ParseTransactionState(value string) (TransactionState, error) {
	for _, candidate := range validTransactionStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction state %q", value)
}
