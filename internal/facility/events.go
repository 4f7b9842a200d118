package facility

import "time"

// EventType names a change to an incident.
type EventType string

const (
	EventIncidentCreated  EventType = "incident.created"
	EventIncidentUpdated  EventType = "incident.updated"
	EventIncidentResolved EventType = "incident.resolved"
	EventIncidentDeleted  EventType = "incident.deleted"
)

// Event is published after an incident mutation is committed.
type Event struct {
	Type     EventType `json:"type"`
	Incident Incident  `json:"incident"`
	At       time.Time `json:"at"`
}

// Publisher receives committed incident events. Publish must not block.
type Publisher interface {
	Publish(Event)
}

type discard struct{}

func (discard) Publish(Event) {}
