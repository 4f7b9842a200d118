package console

import (
	"context"

	"firewatch.org/internal/facility"
	"firewatch.org/internal/session"
)

// Watcher delivers incident events until ctx is cancelled.
type Watcher interface {
	WatchIncidents(ctx context.Context, fn func(facility.Event)) error
}

// WatchSensor shows the sensor view and redraws it whenever an incident of
// that sensor changes. It returns when ctx is cancelled or the stream ends.
func (r *Router) WatchSensor(ctx context.Context, w Watcher, id int64) error {
	page, err := r.Load(ctx, session.SensorRoute(id))
	if err != nil {
		return err
	}
	r.write(page)
	sp, ok := page.(SensorPage)
	if !ok || sp.Incidents == nil {
		// Guard redirected to login.
		return nil
	}

	err = w.WatchIncidents(ctx, func(evt facility.Event) {
		if evt.Incident.SensorID != id {
			return
		}
		sp.Incidents.Apply(evt, id)
		r.write(sp)
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}
