package models

import "time"

// StatusProcessed is the only status the ERP processor records.
const StatusProcessed = "Processed"

// ProcessedEventRecord is the audit row written once an event has been
// pushed to the ERP system.
type ProcessedEventRecord struct {
	EventID     string    `json:"eventId"`
	UserID      string    `json:"userId"`
	UserName    string    `json:"userName"`
	UserEmail   string    `json:"userEmail"`
	ExternalID  string    `json:"externalId"`
	ProcessedAt time.Time `json:"processedAt"`
	EventType   string    `json:"eventType"`
	Status      string    `json:"status"`
}

// Key implements store.Entity. Audit rows are keyed by event id.
func (r ProcessedEventRecord) Key() string { return r.EventID }
