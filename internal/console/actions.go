package console

import (
	"context"
	"fmt"

	"firewatch.org/internal/facility"
	"firewatch.org/internal/incident"
	"firewatch.org/internal/session"
)

// ResolveIncident resolves incident id if the signed-in user may, and shows
// the updated incident without re-fetching it. If another navigation started
// meanwhile the resolution still stands but nothing is shown and ErrStale is returned.
func (r *Router) ResolveIncident(ctx context.Context, id int64) error {
	page, err := r.Load(ctx, session.IncidentRoute(id))
	if err != nil {
		return err
	}
	incPage, ok := page.(IncidentPage)
	if !ok {
		return r.Show(ctx, session.RouteLogin)
	}
	gen := r.gen.Load()
	list := incident.NewList([]facility.Incident{incPage.Incident})
	if err := r.life.Resolve(ctx, r.managerFor(ctx).Identity(), incPage.Owner, list, id); err != nil {
		return err
	}
	if !r.current(gen) {
		return ErrStale
	}
	incPage.Incident, _ = list.Get(id)
	r.write(incPage)
	return nil
}

// DeleteIncident deletes incident id and follows the navigation to its
// sensor or to the building list.
func (r *Router) DeleteIncident(ctx context.Context, id int64) error {
	page, err := r.Load(ctx, session.IncidentRoute(id))
	if err != nil {
		return err
	}
	incPage, ok := page.(IncidentPage)
	if !ok {
		return r.Show(ctx, session.RouteLogin)
	}
	if err := r.life.Delete(ctx, r.managerFor(ctx).Identity(), incPage.Owner, nil, incPage.Incident); err != nil {
		return err
	}
	return r.Follow(ctx)
}

// ReportIncident raises an incident on a sensor and shows it.
func (r *Router) ReportIncident(ctx context.Context, in facility.IncidentInput) (facility.Incident, error) {
	if _, err := r.Guard(ctx, session.RouteBuildings); err != nil {
		return facility.Incident{}, err
	}
	if r.managerFor(ctx).Identity() == nil {
		return facility.Incident{}, session.ErrNoSession
	}
	inc, err := r.api.ReportIncident(ctx, in)
	if err != nil {
		return facility.Incident{}, fmt.Errorf("report incident: %w", err)
	}
	return inc, r.Show(ctx, session.IncidentRoute(inc.ID))
}
