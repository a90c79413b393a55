package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
)

// ExpenseEvent is a lightweight notification that an expense changed.
// Consumers fetch the current state from the database by ID.
type ExpenseEvent struct {
	Type      EventType `json:"type"`
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewExpenseEvent(t EventType, id int64) ExpenseEvent {
	return ExpenseEvent{Type: t, ID: id, Timestamp: time.Now().UTC()}
}

func (e ExpenseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ExpenseEventFromJSON decodes and validates an event body.
func ExpenseEventFromJSON(data []byte) (ExpenseEvent, error) {
	var ev ExpenseEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ExpenseEvent{}, err
	}
	switch ev.Type {
	case EventCreated, EventUpdated, EventDeleted:
	default:
		return ExpenseEvent{}, fmt.Errorf("unknown event type %q", ev.Type)
	}
	if ev.ID <= 0 {
		return ExpenseEvent{}, fmt.Errorf("invalid expense id %d", ev.ID)
	}
	return ev, nil
}
