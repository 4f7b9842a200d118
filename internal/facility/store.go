package facility

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store persists buildings, sensors and incidents. Deleting a building removes
// its sensors and their incidents; deleting a sensor removes its incidents.
type Store interface {
	CreateBuilding(ctx context.Context, b Building) (Building, error)
	GetBuilding(ctx context.Context, id int64) (Building, error)
	ListBuildings(ctx context.Context) ([]Building, error)
	UpdateBuilding(ctx context.Context, b Building) (Building, error)
	DeleteBuilding(ctx context.Context, id int64) error

	CreateSensor(ctx context.Context, s Sensor) (Sensor, error)
	GetSensor(ctx context.Context, id int64) (Sensor, error)
	ListSensors(ctx context.Context, f SensorFilter) ([]Sensor, error)
	UpdateSensor(ctx context.Context, s Sensor) (Sensor, error)
	DeleteSensor(ctx context.Context, id int64) error

	CreateIncident(ctx context.Context, i Incident) (Incident, error)
	GetIncident(ctx context.Context, id int64) (Incident, error)
	ListIncidents(ctx context.Context, f IncidentFilter) ([]Incident, error)
	UpdateIncident(ctx context.Context, i Incident) (Incident, error)
	DeleteIncident(ctx context.Context, id int64) error
}

var _ Store = (*InMemory)(nil)

// InMemory implements Store with in-process concurrency safety.
type InMemory struct {
	mu        sync.RWMutex
	seq       int64
	buildings map[int64]Building
	sensors   map[int64]Sensor
	incidents map[int64]Incident
}

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		buildings: make(map[int64]Building),
		sensors:   make(map[int64]Sensor),
		incidents: make(map[int64]Incident),
	}
}

func (s *InMemory) nextID() int64 {
	s.seq++
	return s.seq
}

func (s *InMemory) CreateBuilding(_ context.Context, b Building) (Building, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.ID = s.nextID()
	if b.CreatedAt == nil {
		now := time.Now().UTC()
		b.CreatedAt = &now
	}
	s.buildings[b.ID] = b
	return b, nil
}

func (s *InMemory) GetBuilding(_ context.Context, id int64) (Building, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.buildings[id]
	if !ok {
		return Building{}, ErrNotFound
	}
	return b, nil
}

func (s *InMemory) ListBuildings(_ context.Context) ([]Building, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Building, 0, len(s.buildings))
	for _, b := range s.buildings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) UpdateBuilding(_ context.Context, b Building) (Building, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.buildings[b.ID]
	if !ok {
		return Building{}, ErrNotFound
	}
	cur.Name = b.Name
	cur.Address = b.Address
	s.buildings[b.ID] = cur
	return cur, nil
}

func (s *InMemory) DeleteBuilding(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buildings[id]; !ok {
		return ErrNotFound
	}
	for sid, sensor := range s.sensors {
		if sensor.BuildingID == id {
			s.deleteSensorLocked(sid)
		}
	}
	delete(s.buildings, id)
	return nil
}

func (s *InMemory) CreateSensor(_ context.Context, sensor Sensor) (Sensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buildings[sensor.BuildingID]; !ok {
		return Sensor{}, ErrNotFound
	}
	sensor.ID = s.nextID()
	s.sensors[sensor.ID] = sensor
	return sensor, nil
}

func (s *InMemory) GetSensor(_ context.Context, id int64) (Sensor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sensor, ok := s.sensors[id]
	if !ok {
		return Sensor{}, ErrNotFound
	}
	return sensor, nil
}

func (s *InMemory) ListSensors(_ context.Context, f SensorFilter) ([]Sensor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Sensor, 0)
	for _, sensor := range s.sensors {
		if f.Match(sensor) {
			out = append(out, sensor)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) UpdateSensor(_ context.Context, sensor Sensor) (Sensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sensors[sensor.ID]; !ok {
		return Sensor{}, ErrNotFound
	}
	if _, ok := s.buildings[sensor.BuildingID]; !ok {
		return Sensor{}, ErrNotFound
	}
	s.sensors[sensor.ID] = sensor
	return sensor, nil
}

func (s *InMemory) DeleteSensor(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sensors[id]; !ok {
		return ErrNotFound
	}
	s.deleteSensorLocked(id)
	return nil
}

func (s *InMemory) deleteSensorLocked(id int64) {
	for iid, inc := range s.incidents {
		if inc.SensorID == id {
			delete(s.incidents, iid)
		}
	}
	delete(s.sensors, id)
}

func (s *InMemory) CreateIncident(_ context.Context, inc Incident) (Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sensors[inc.SensorID]; !ok {
		return Incident{}, ErrNotFound
	}
	inc.ID = s.nextID()
	s.incidents[inc.ID] = inc
	return inc, nil
}

func (s *InMemory) GetIncident(_ context.Context, id int64) (Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inc, ok := s.incidents[id]
	if !ok {
		return Incident{}, ErrNotFound
	}
	return inc, nil
}

func (s *InMemory) ListIncidents(_ context.Context, f IncidentFilter) ([]Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Incident, 0)
	for _, inc := range s.incidents {
		if f.Match(inc) {
			out = append(out, inc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) UpdateIncident(_ context.Context, inc Incident) (Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.incidents[inc.ID]; !ok {
		return Incident{}, ErrNotFound
	}
	s.incidents[inc.ID] = inc
	return inc, nil
}

func (s *InMemory) DeleteIncident(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.incidents[id]; !ok {
		return ErrNotFound
	}
	delete(s.incidents, id)
	return nil
}
