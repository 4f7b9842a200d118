package console

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"firewatch.org/internal/auth"
	"firewatch.org/internal/facility"
	"firewatch.org/internal/incident"
)

// Page is a loaded view ready to render.
type Page interface {
	Render(t Theme) string
}

// LoginPage prompts for credentials.
type LoginPage struct{}

// RegisterPage prompts for a new account.
type RegisterPage struct{}

// BuildingsPage lists every building; Editable marks the ones the caller may change.
type BuildingsPage struct {
	Identity  *auth.Identity
	Buildings []facility.Building
	Editable  map[int64]bool
}

// BuildingPage shows a building with its sensors.
type BuildingPage struct {
	Building facility.Building
	Sensors  []facility.Sensor
	Actions  auth.ActionSet
}

// SensorPage shows a sensor with its incidents. Building is nil when the
// owning building could not be loaded, in which case no mutation is offered.
type SensorPage struct {
	Sensor    facility.Sensor
	Building  *facility.Building
	Incidents *incident.List
	Actions   auth.ActionSet
}

// IncidentPage shows one incident.
type IncidentPage struct {
	Incident facility.Incident
	Owner    auth.Ownership
	Actions  auth.ActionSet
}

func loadBuildings(ctx context.Context, api API, identity *auth.Identity) (BuildingsPage, error) {
	buildings, err := api.ListBuildings(ctx)
	if err != nil {
		return BuildingsPage{}, fmt.Errorf("load buildings: %w", err)
	}
	editable := make(map[int64]bool, len(buildings))
	for _, b := range buildings {
		editable[b.ID] = auth.Allowed(identity, auth.OwnedBy(b.OwnerID)).Has(auth.ActionEditBuilding)
	}
	return BuildingsPage{Identity: identity, Buildings: buildings, Editable: editable}, nil
}

// loadBuilding fetches the building and its sensors concurrently.
func loadBuilding(ctx context.Context, api API, identity *auth.Identity, id int64) (BuildingPage, error) {
	var page BuildingPage
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b, err := api.GetBuilding(gctx, id)
		if err != nil {
			return fmt.Errorf("load building %d: %w", id, err)
		}
		page.Building = b
		return nil
	})
	g.Go(func() error {
		sensors, err := api.ListSensors(gctx, facility.SensorFilter{BuildingID: &id})
		if err != nil {
			return fmt.Errorf("load sensors of building %d: %w", id, err)
		}
		page.Sensors = sensors
		return nil
	})
	if err := g.Wait(); err != nil {
		return BuildingPage{}, err
	}
	page.Actions = auth.Allowed(identity, auth.OwnedBy(page.Building.OwnerID))
	return page, nil
}

// loadSensor fetches the sensor first, then its building and incidents
// concurrently. A failed building fetch denies mutation but still shows the sensor.
func loadSensor(ctx context.Context, api API, identity *auth.Identity, id int64) (SensorPage, error) {
	sensor, err := api.GetSensor(ctx, id)
	if err != nil {
		return SensorPage{}, fmt.Errorf("load sensor %d: %w", id, err)
	}
	page := SensorPage{Sensor: sensor}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b, err := api.GetBuilding(gctx, sensor.BuildingID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		}
		page.Building = &b
		return nil
	})
	g.Go(func() error {
		incidents, err := api.ListIncidents(gctx, facility.IncidentFilter{SensorID: &id})
		if err != nil {
			return fmt.Errorf("load incidents of sensor %d: %w", id, err)
		}
		page.Incidents = incident.NewList(incidents)
		return nil
	})
	if err := g.Wait(); err != nil {
		return SensorPage{}, err
	}

	owner := auth.UnknownOwner()
	if page.Building != nil {
		owner = auth.OwnedBy(page.Building.OwnerID)
	}
	page.Actions = auth.Allowed(identity, owner)
	return page, nil
}

func loadIncident(ctx context.Context, api API, life *incident.Lifecycle, identity *auth.Identity, id int64) (IncidentPage, error) {
	inc, err := api.GetIncident(ctx, id)
	if err != nil {
		return IncidentPage{}, fmt.Errorf("load incident %d: %w", id, err)
	}
	owner := life.Owner(ctx, inc)
	if err := ctx.Err(); err != nil {
		return IncidentPage{}, err
	}
	return IncidentPage{Incident: inc, Owner: owner, Actions: auth.Allowed(identity, owner)}, nil
}
