package amqp

import (
	"encoding/json"
	"time"
)

// BudgetExportMessage asks the worker to export one event's budget snapshot.
// It carries only the ids; the worker reads the current rows from SQLite so
// a delayed delivery still exports fresh data.
type BudgetExportMessage struct {
	UserID    string    `json:"userId"`
	EventID   string    `json:"eventId"`
	Timestamp time.Time `json:"timestamp"`
}

func NewBudgetExportMessage(userID, eventID string) *BudgetExportMessage {
	return &BudgetExportMessage{
		UserID:    userID,
		EventID:   eventID,
		Timestamp: time.Now(),
	}
}

func (m *BudgetExportMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func BudgetExportMessageFromJSON(data []byte) (*BudgetExportMessage, error) {
	var msg BudgetExportMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
