package eventing

import (
	"encoding/json"
	"reflect"
	"time"
)

// Envelope is the outbox record of one event.
type Envelope struct {
	EventID         string          `json:"event_id"`
	EventType       string          `json:"event_type"`
	OccurredAt      time.Time       `json:"occurred_at"`
	CorrelationID   string          `json:"correlation_id"`
	TenantID        string          `json:"tenant_id"`
	MeteringPointID string          `json:"metering_point_id"`
	SchemaVersion   int             `json:"schema_version"`
	Payload         json.RawMessage `json:"payload"`
}

// Meta overrides envelope fields. Zero fields are derived from the event.
type Meta struct {
	EventID         string
	OccurredAt      time.Time
	CorrelationID   string
	TenantID        string
	MeteringPointID string
	SchemaVersion   int
}

// BuildEnvelope serializes event and fills metadata.
//
// MeteringPointID and OccurredAt are read from same-named struct fields of the
// event when meta leaves them empty; the correlation id defaults to the event id.
func BuildEnvelope(event any, meta Meta) (Envelope, error) {
	if event == nil {
		return Envelope{}, ErrNilEvent
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return Envelope{}, err
	}

	env := Envelope{
		EventID:         meta.EventID,
		EventType:       EventType(event),
		OccurredAt:      meta.OccurredAt,
		CorrelationID:   meta.CorrelationID,
		TenantID:        meta.TenantID,
		MeteringPointID: meta.MeteringPointID,
		SchemaVersion:   meta.SchemaVersion,
		Payload:         payload,
	}
	fields := structValue(event)
	if env.MeteringPointID == "" {
		if s, ok := fieldValue(fields, "MeteringPointID").(string); ok {
			env.MeteringPointID = s
		}
	}
	if env.OccurredAt.IsZero() {
		if t, ok := fieldValue(fields, "OccurredAt").(time.Time); ok {
			env.OccurredAt = t
		}
	}
	if env.OccurredAt.IsZero() {
		env.OccurredAt = time.Now()
	}
	env.OccurredAt = env.OccurredAt.UTC()
	if env.EventID == "" {
		env.EventID = NewEventID()
	}
	if env.CorrelationID == "" {
		env.CorrelationID = env.EventID
	}
	if env.SchemaVersion == 0 {
		env.SchemaVersion = 1
	}
	return env, nil
}

func structValue(event any) reflect.Value {
	value := reflect.ValueOf(event)
	for value.Kind() == reflect.Ptr {
		if value.IsNil() {
			return reflect.Value{}
		}
		value = value.Elem()
	}
	if value.Kind() != reflect.Struct {
		return reflect.Value{}
	}
	return value
}

func fieldValue(value reflect.Value, name string) any {
	if !value.IsValid() {
		return nil
	}
	field := value.FieldByName(name)
	if !field.IsValid() || !field.CanInterface() {
		return nil
	}
	return field.Interface()
}
