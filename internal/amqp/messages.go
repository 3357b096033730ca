package amqp

import (
	"encoding/json"
	"time"
)

// Ledger event actions.
const (
	ActionCreated     = "transaction.created"
	ActionVoided      = "transaction.voided"
	ActionTransferred = "transfer.executed"
)

// LedgerEventMessage notifies external consumers that the ledger changed.
// It carries identities only; consumers fetch details through the API.
type LedgerEventMessage struct {
	TransactionID int64     `json:"transaction_id"`
	TransferID    string    `json:"transfer_id,omitempty"`
	Action        string    `json:"action"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func NewLedgerEventMessage(transactionID int64, transferID, action string) *LedgerEventMessage {
	return &LedgerEventMessage{
		TransactionID: transactionID,
		TransferID:    transferID,
		Action:        action,
		OccurredAt:    time.Now(),
	}
}

func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
