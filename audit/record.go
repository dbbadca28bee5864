// Package audit records business-significant actions transactionally
// alongside the actions themselves. Endpoints declare mappings evaluated
// after a successful handler run; handlers may also raise records manually
// through the Recorder the coordinator hands them.
package audit

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Record is one immutable audit entry.
type Record struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	EntityTable string    `json:"entity_table,omitempty"`
	EntityID    string    `json:"entity_id,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
	Payload     any       `json:"payload,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Filter narrows a storage query.
type Filter struct {
	Type        string
	EntityTable string
	EntityID    string
	Since       time.Time
	Limit       int
}

// Mapping is a declarative audit rule evaluated against the handler's
// validated output after it succeeds.
type Mapping struct {
	Type     string
	Table    string
	Payload  func(output any) any
	When     func(output any) bool
	EntityID func(output any) string
}

func newRecord(typ string, payload any, requestID string) Record {
	return Record{
		ID:         ulid.Make().String(),
		Type:       typ,
		Payload:    payload,
		RequestID:  requestID,
		RecordedAt: time.Now().UTC(),
	}
}

func evaluate(mappings []Mapping, output any, requestID string) []Record {
	records := make([]Record, 0, len(mappings))
	for _, m := range mappings {
		if m.When != nil && !m.When(output) {
			continue
		}
		rec := newRecord(m.Type, nil, requestID)
		rec.EntityTable = m.Table
		if m.Payload != nil {
			rec.Payload = m.Payload(output)
		}
		if m.EntityID != nil {
			rec.EntityID = m.EntityID(output)
		}
		records = append(records, rec)
	}
	return records
}
