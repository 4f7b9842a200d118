package facility

import (
	"context"
	"errors"
	"fmt"
	"time"

	"firewatch.org/internal/audit"
	"firewatch.org/internal/auth"
)

// Service applies ownership rules on top of a Store. Reads are open to any
// authenticated caller; mutations of a building, its sensors and their
// incidents require the owner or an admin. Reporting an incident only
// requires the sensor to exist.
type Service struct {
	store  Store
	events Publisher
	now    func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithPublisher sends committed incident changes to p.
func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.events = p
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service over store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, events: discard{}, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func authorize(actor auth.Identity, ownerID int64) error {
	if !auth.CanEdit(&actor, ownerID) {
		return ErrForbidden
	}
	return nil
}

func (s *Service) ListBuildings(ctx context.Context) ([]Building, error) {
	return s.store.ListBuildings(ctx)
}

func (s *Service) GetBuilding(ctx context.Context, id int64) (Building, error) {
	return s.store.GetBuilding(ctx, id)
}

// CreateBuilding records a building owned by actor.
func (s *Service) CreateBuilding(ctx context.Context, actor auth.Identity, in BuildingInput) (Building, error) {
	in, err := in.Normalize()
	if err != nil {
		return Building{}, err
	}
	now := s.now().UTC()
	b, err := s.store.CreateBuilding(ctx, Building{
		Name:      in.Name,
		Address:   in.Address,
		OwnerID:   actor.ID,
		CreatedAt: &now,
	})
	if err != nil {
		return Building{}, err
	}
	_ = audit.LogEvent(ctx, "building.create", map[string]any{"building_id": b.ID})
	return b, nil
}

// UpdateBuilding changes name and address. Ownership never changes.
func (s *Service) UpdateBuilding(ctx context.Context, actor auth.Identity, id int64, in BuildingInput) (Building, error) {
	in, err := in.Normalize()
	if err != nil {
		return Building{}, err
	}
	cur, err := s.store.GetBuilding(ctx, id)
	if err != nil {
		return Building{}, err
	}
	if err := authorize(actor, cur.OwnerID); err != nil {
		return Building{}, err
	}
	cur.Name, cur.Address = in.Name, in.Address
	b, err := s.store.UpdateBuilding(ctx, cur)
	if err != nil {
		return Building{}, err
	}
	_ = audit.LogEvent(ctx, "building.update", map[string]any{"building_id": id})
	return b, nil
}

// DeleteBuilding removes a building with its sensors and their incidents.
func (s *Service) DeleteBuilding(ctx context.Context, actor auth.Identity, id int64) error {
	cur, err := s.store.GetBuilding(ctx, id)
	if err != nil {
		return err
	}
	if err := authorize(actor, cur.OwnerID); err != nil {
		return err
	}
	if err := s.store.DeleteBuilding(ctx, id); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "building.delete", map[string]any{"building_id": id})
	return nil
}

func (s *Service) ListSensors(ctx context.Context, f SensorFilter) ([]Sensor, error) {
	return s.store.ListSensors(ctx, f)
}

func (s *Service) GetSensor(ctx context.Context, id int64) (Sensor, error) {
	return s.store.GetSensor(ctx, id)
}

// buildingOwner resolves the owner of a building. A missing building is reported
// as invalid input because it is referenced from a request body.
func (s *Service) buildingOwner(ctx context.Context, buildingID int64) (int64, error) {
	b, err := s.store.GetBuilding(ctx, buildingID)
	if errors.Is(err, ErrNotFound) {
		return 0, fmt.Errorf("%w: building %d does not exist", ErrInvalidInput, buildingID)
	}
	if err != nil {
		return 0, err
	}
	return b.OwnerID, nil
}

// CreateSensor installs a sensor in a building actor may edit.
func (s *Service) CreateSensor(ctx context.Context, actor auth.Identity, in SensorInput) (Sensor, error) {
	in, err := in.Normalize()
	if err != nil {
		return Sensor{}, err
	}
	owner, err := s.buildingOwner(ctx, in.BuildingID)
	if err != nil {
		return Sensor{}, err
	}
	if err := authorize(actor, owner); err != nil {
		return Sensor{}, err
	}
	sensor, err := s.store.CreateSensor(ctx, Sensor{
		Type:        in.Type,
		Location:    in.Location,
		InstalledAt: in.InstalledAt,
		BuildingID:  in.BuildingID,
		IsActive:    in.IsActive,
	})
	if err != nil {
		return Sensor{}, err
	}
	_ = audit.LogEvent(ctx, "sensor.create", map[string]any{"sensor_id": sensor.ID, "building_id": sensor.BuildingID})
	return sensor, nil
}

// UpdateSensor replaces a sensor. Moving it to another building requires edit
// rights on both buildings.
func (s *Service) UpdateSensor(ctx context.Context, actor auth.Identity, id int64, in SensorInput) (Sensor, error) {
	in, err := in.Normalize()
	if err != nil {
		return Sensor{}, err
	}
	cur, err := s.store.GetSensor(ctx, id)
	if err != nil {
		return Sensor{}, err
	}
	owner, err := s.SensorOwner(ctx, cur)
	if err != nil {
		return Sensor{}, err
	}
	if err := authorize(actor, owner); err != nil {
		return Sensor{}, err
	}
	if in.BuildingID != cur.BuildingID {
		target, err := s.buildingOwner(ctx, in.BuildingID)
		if err != nil {
			return Sensor{}, err
		}
		if err := authorize(actor, target); err != nil {
			return Sensor{}, err
		}
	}
	sensor, err := s.store.UpdateSensor(ctx, Sensor{
		ID:          id,
		Type:        in.Type,
		Location:    in.Location,
		InstalledAt: in.InstalledAt,
		BuildingID:  in.BuildingID,
		IsActive:    in.IsActive,
	})
	if err != nil {
		return Sensor{}, err
	}
	_ = audit.LogEvent(ctx, "sensor.update", map[string]any{"sensor_id": id})
	return sensor, nil
}

// DeleteSensor removes a sensor and its incidents.
func (s *Service) DeleteSensor(ctx context.Context, actor auth.Identity, id int64) error {
	cur, err := s.store.GetSensor(ctx, id)
	if err != nil {
		return err
	}
	owner, err := s.SensorOwner(ctx, cur)
	if err != nil {
		return err
	}
	if err := authorize(actor, owner); err != nil {
		return err
	}
	if err := s.store.DeleteSensor(ctx, id); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "sensor.delete", map[string]any{"sensor_id": id})
	return nil
}

// SensorOwner resolves the owner of the building sensor belongs to.
func (s *Service) SensorOwner(ctx context.Context, sensor Sensor) (int64, error) {
	b, err := s.store.GetBuilding(ctx, sensor.BuildingID)
	if err != nil {
		return 0, err
	}
	return b.OwnerID, nil
}

// IncidentOwner resolves the owner of the building an incident was raised in.
func (s *Service) IncidentOwner(ctx context.Context, inc Incident) (int64, error) {
	sensor, err := s.store.GetSensor(ctx, inc.SensorID)
	if err != nil {
		return 0, err
	}
	return s.SensorOwner(ctx, sensor)
}

func (s *Service) ListIncidents(ctx context.Context, f IncidentFilter) ([]Incident, error) {
	return s.store.ListIncidents(ctx, f)
}

func (s *Service) GetIncident(ctx context.Context, id int64) (Incident, error) {
	return s.store.GetIncident(ctx, id)
}

// ReportIncident records a new open incident on an existing sensor.
func (s *Service) ReportIncident(ctx context.Context, in IncidentInput) (Incident, error) {
	in, err := in.Normalize()
	if err != nil {
		return Incident{}, err
	}
	if _, err := s.store.GetSensor(ctx, in.SensorID); err != nil {
		return Incident{}, err
	}
	detected := s.now().UTC()
	if in.DetectedAt != nil {
		detected = in.DetectedAt.UTC()
	}
	inc, err := s.store.CreateIncident(ctx, Incident{
		Level:       in.Level,
		Description: in.Description,
		SensorID:    in.SensorID,
		DetectedAt:  detected,
	})
	if err != nil {
		return Incident{}, err
	}
	_ = audit.LogEvent(ctx, "incident.create", map[string]any{"incident_id": inc.ID, "sensor_id": inc.SensorID, "level": string(inc.Level)})
	s.publish(EventIncidentCreated, inc)
	return inc, nil
}

// PatchIncident applies p. Resolution is one-way; patching a resolved incident
// with resolved=true leaves it unchanged.
func (s *Service) PatchIncident(ctx context.Context, actor auth.Identity, id int64, p IncidentPatch) (Incident, error) {
	cur, err := s.store.GetIncident(ctx, id)
	if err != nil {
		return Incident{}, err
	}
	owner, err := s.IncidentOwner(ctx, cur)
	if err != nil {
		return Incident{}, err
	}
	if err := authorize(actor, owner); err != nil {
		return Incident{}, err
	}
	next, err := p.Apply(cur)
	if err != nil {
		return Incident{}, err
	}
	if next == cur {
		return cur, nil
	}
	inc, err := s.store.UpdateIncident(ctx, next)
	if err != nil {
		return Incident{}, err
	}
	event := EventIncidentUpdated
	if inc.Resolved && !cur.Resolved {
		event = EventIncidentResolved
	}
	_ = audit.LogEvent(ctx, string(event), map[string]any{"incident_id": id})
	s.publish(event, inc)
	return inc, nil
}

// DeleteIncident removes an incident regardless of its resolution state.
func (s *Service) DeleteIncident(ctx context.Context, actor auth.Identity, id int64) error {
	cur, err := s.store.GetIncident(ctx, id)
	if err != nil {
		return err
	}
	owner, err := s.IncidentOwner(ctx, cur)
	if err != nil {
		return err
	}
	if err := authorize(actor, owner); err != nil {
		return err
	}
	if err := s.store.DeleteIncident(ctx, id); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "incident.delete", map[string]any{"incident_id": id})
	s.publish(EventIncidentDeleted, cur)
	return nil
}

func (s *Service) publish(t EventType, inc Incident) {
	s.events.Publish(Event{Type: t, Incident: inc, At: s.now().UTC()})
}
