// Package incident holds the open → resolved lifecycle of an incident and the
// client-side effects of resolving and deleting one.
package incident

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"firewatch.org/internal/auth"
	"firewatch.org/internal/facility"
	"firewatch.org/internal/session"
)

// State of an incident. Resolved is terminal.
type State int

const (
	Open State = iota
	Resolved
)

func (s State) String() string {
	if s == Resolved {
		return "resolved"
	}
	return "open"
}

// StateOf returns the lifecycle state of inc.
func StateOf(inc facility.Incident) State {
	if inc.Resolved {
		return Resolved
	}
	return Open
}

// Resolve applies the only transition. Resolving a resolved incident is a no-op.
func Resolve(inc facility.Incident) facility.Incident {
	inc.Resolved = true
	return inc
}

// ErrNotPermitted is returned when the identity may not act on the incident.
var ErrNotPermitted = errors.New("incident: not permitted")

// API is the part of the resource API the lifecycle uses.
type API interface {
	GetSensor(ctx context.Context, id int64) (facility.Sensor, error)
	GetBuilding(ctx context.Context, id int64) (facility.Building, error)
	ResolveIncident(ctx context.Context, id int64) error
	DeleteIncident(ctx context.Context, id int64) error
}

// Lifecycle performs resolve and delete against the API.
type Lifecycle struct {
	api API
	nav session.Navigator
}

// New returns a Lifecycle. nav receives the route to show after a delete.
func New(api API, nav session.Navigator) *Lifecycle {
	if nav == nil {
		nav = session.NavigatorFunc(func(string) {})
	}
	return &Lifecycle{api: api, nav: nav}
}

// Owner resolves the ownership of inc through its sensor and building. Any
// failure yields an unknown owner, which grants no mutation.
func (l *Lifecycle) Owner(ctx context.Context, inc facility.Incident) auth.Ownership {
	sensor, err := l.api.GetSensor(ctx, inc.SensorID)
	if err != nil {
		return auth.UnknownOwner()
	}
	building, err := l.api.GetBuilding(ctx, sensor.BuildingID)
	if err != nil {
		return auth.UnknownOwner()
	}
	return auth.OwnedBy(building.OwnerID)
}

// Resolve sends the resolution to the API and then marks the incident resolved
// in list without a re-fetch. An incident the list already shows as resolved
// is left alone. list may be nil.
func (l *Lifecycle) Resolve(ctx context.Context, identity *auth.Identity, owner auth.Ownership, list *List, id int64) error {
	if !auth.Allowed(identity, owner).Has(auth.ActionResolveIncident) {
		return ErrNotPermitted
	}
	if list != nil {
		if inc, ok := list.Get(id); ok && StateOf(inc) == Resolved {
			return nil
		}
	}
	if err := l.api.ResolveIncident(ctx, id); err != nil {
		return fmt.Errorf("resolve incident %d: %w", id, err)
	}
	if list != nil {
		list.MarkResolved(id)
	}
	return nil
}

// Delete removes inc and navigates to its sensor, or to the building list
// when the sensor cannot be resolved.
func (l *Lifecycle) Delete(ctx context.Context, identity *auth.Identity, owner auth.Ownership, list *List, inc facility.Incident) error {
	if !auth.Allowed(identity, owner).Has(auth.ActionDeleteIncident) {
		return ErrNotPermitted
	}
	if err := l.api.DeleteIncident(ctx, inc.ID); err != nil {
		return fmt.Errorf("delete incident %d: %w", inc.ID, err)
	}
	if list != nil {
		list.Remove(inc.ID)
	}
	route := session.RouteBuildings
	if inc.SensorID > 0 {
		if _, err := l.api.GetSensor(ctx, inc.SensorID); err == nil {
			route = session.SensorRoute(inc.SensorID)
		}
	}
	l.nav.Navigate(route)
	return nil
}

// List is the in-memory incident list a view renders.
type List struct {
	mu    sync.RWMutex
	items []facility.Incident
}

// NewList copies items into a new list.
func NewList(items []facility.Incident) *List {
	l := &List{}
	l.Replace(items)
	return l
}

// Replace swaps the list contents, for example after a re-fetch.
func (l *List) Replace(items []facility.Incident) {
	cp := make([]facility.Incident, len(items))
	copy(cp, items)
	l.mu.Lock()
	l.items = cp
	l.mu.Unlock()
}

// Items returns a copy of the incidents, most recently detected first.
func (l *List) Items() []facility.Incident {
	l.mu.RLock()
	out := make([]facility.Incident, len(l.items))
	copy(out, l.items)
	l.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].DetectedAt.After(out[j].DetectedAt) })
	return out
}

func (l *List) Get(id int64) (facility.Incident, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, inc := range l.items {
		if inc.ID == id {
			return inc, true
		}
	}
	return facility.Incident{}, false
}

// MarkResolved applies Resolve to the incident with id. It reports whether it was found.
func (l *List) MarkResolved(id int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.items {
		if l.items[i].ID == id {
			l.items[i] = Resolve(l.items[i])
			return true
		}
	}
	return false
}

func (l *List) Remove(id int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.items {
		if l.items[i].ID == id {
			l.items = append(l.items[:i], l.items[i+1:]...)
			return
		}
	}
}

// Apply folds a streamed event into the list. Events for other sensors are
// ignored when sensorID is non-zero.
func (l *List) Apply(evt facility.Event, sensorID int64) {
	if sensorID != 0 && evt.Incident.SensorID != sensorID {
		return
	}
	switch evt.Type {
	case facility.EventIncidentDeleted:
		l.Remove(evt.Incident.ID)
	case facility.EventIncidentResolved:
		if !l.MarkResolved(evt.Incident.ID) {
			l.upsert(evt.Incident)
		}
	default:
		l.upsert(evt.Incident)
	}
}

func (l *List) upsert(inc facility.Incident) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.items {
		if l.items[i].ID == inc.ID {
			// resolution is one-way even if an older event arrives late
			inc.Resolved = inc.Resolved || l.items[i].Resolved
			l.items[i] = inc
			return
		}
	}
	l.items = append(l.items, inc)
}
