package pg

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"firewatch.org/internal/facility"
)

var _ facility.Store = (*Store)(nil)

type scanner interface {
	Scan(dest ...any) error
}

// Buildings -----------------------------------------------------------------

const buildingColumns = `id, name, address, owner_id, created_at`

func scanBuilding(row scanner) (facility.Building, error) {
	var (
		b       facility.Building
		created time.Time
	)
	if err := row.Scan(&b.ID, &b.Name, &b.Address, &b.OwnerID, &created); err != nil {
		return facility.Building{}, err
	}
	created = created.UTC()
	b.CreatedAt = &created
	return b, nil
}

func (s *Store) CreateBuilding(ctx context.Context, b facility.Building) (facility.Building, error) {
	out, err := scanBuilding(s.db.QueryRowContext(ctx, `
		insert into buildings (name, address, owner_id)
		values ($1, $2, $3)
		returning `+buildingColumns, b.Name, b.Address, b.OwnerID))
	if isCode(err, pgErrForeignKeyViolation) {
		return facility.Building{}, facility.ErrNotFound
	}
	return out, err
}

func (s *Store) GetBuilding(ctx context.Context, id int64) (facility.Building, error) {
	b, err := scanBuilding(s.db.QueryRowContext(ctx, `select `+buildingColumns+` from buildings where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return facility.Building{}, facility.ErrNotFound
	}
	return b, err
}

func (s *Store) ListBuildings(ctx context.Context) ([]facility.Building, error) {
	rows, err := s.db.QueryContext(ctx, `select `+buildingColumns+` from buildings order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]facility.Building, 0)
	for rows.Next() {
		b, err := scanBuilding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) UpdateBuilding(ctx context.Context, b facility.Building) (facility.Building, error) {
	out, err := scanBuilding(s.db.QueryRowContext(ctx, `
		update buildings set name = $2, address = $3, owner_id = $4
		where id = $1
		returning `+buildingColumns, b.ID, b.Name, b.Address, b.OwnerID))
	if errors.Is(err, sql.ErrNoRows) {
		return facility.Building{}, facility.ErrNotFound
	}
	return out, err
}

// DeleteBuilding relies on "on delete cascade" for sensors and incidents.
func (s *Store) DeleteBuilding(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `delete from buildings where id = $1`, id)
	if err != nil {
		return err
	}
	return affected(res, facility.ErrNotFound)
}

// Sensors -------------------------------------------------------------------

const sensorColumns = `id, type, location, installed_at, building_id, is_active`

func scanSensor(row scanner) (facility.Sensor, error) {
	var (
		sensor    facility.Sensor
		kind      string
		installed sql.NullTime
	)
	if err := row.Scan(&sensor.ID, &kind, &sensor.Location, &installed, &sensor.BuildingID, &sensor.IsActive); err != nil {
		return facility.Sensor{}, err
	}
	sensor.Type = facility.SensorType(kind)
	if installed.Valid {
		d := facility.NewDate(installed.Time)
		sensor.InstalledAt = &d
	}
	return sensor, nil
}

func dateArg(d *facility.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func (s *Store) CreateSensor(ctx context.Context, sensor facility.Sensor) (facility.Sensor, error) {
	out, err := scanSensor(s.db.QueryRowContext(ctx, `
		insert into sensors (type, location, installed_at, building_id, is_active)
		values ($1, $2, $3, $4, $5)
		returning `+sensorColumns,
		string(sensor.Type), sensor.Location, dateArg(sensor.InstalledAt), sensor.BuildingID, sensor.IsActive))
	if isCode(err, pgErrForeignKeyViolation) {
		return facility.Sensor{}, facility.ErrNotFound
	}
	return out, err
}

func (s *Store) GetSensor(ctx context.Context, id int64) (facility.Sensor, error) {
	sensor, err := scanSensor(s.db.QueryRowContext(ctx, `select `+sensorColumns+` from sensors where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return facility.Sensor{}, facility.ErrNotFound
	}
	return sensor, err
}

func (s *Store) ListSensors(ctx context.Context, f facility.SensorFilter) ([]facility.Sensor, error) {
	query := `select ` + sensorColumns + ` from sensors`
	var args []any
	if f.BuildingID != nil {
		query += ` where building_id = $1`
		args = append(args, *f.BuildingID)
	}
	rows, err := s.db.QueryContext(ctx, query+` order by id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]facility.Sensor, 0)
	for rows.Next() {
		sensor, err := scanSensor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sensor)
	}
	return out, rows.Err()
}

func (s *Store) UpdateSensor(ctx context.Context, sensor facility.Sensor) (facility.Sensor, error) {
	out, err := scanSensor(s.db.QueryRowContext(ctx, `
		update sensors set type = $2, location = $3, installed_at = $4, building_id = $5, is_active = $6
		where id = $1
		returning `+sensorColumns,
		sensor.ID, string(sensor.Type), sensor.Location, dateArg(sensor.InstalledAt), sensor.BuildingID, sensor.IsActive))
	if errors.Is(err, sql.ErrNoRows) || isCode(err, pgErrForeignKeyViolation) {
		return facility.Sensor{}, facility.ErrNotFound
	}
	return out, err
}

func (s *Store) DeleteSensor(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `delete from sensors where id = $1`, id)
	if err != nil {
		return err
	}
	return affected(res, facility.ErrNotFound)
}

// Incidents -----------------------------------------------------------------

const incidentColumns = `id, level, description, sensor_id, detected_at, resolved`

func scanIncident(row scanner) (facility.Incident, error) {
	var (
		inc   facility.Incident
		level string
	)
	if err := row.Scan(&inc.ID, &level, &inc.Description, &inc.SensorID, &inc.DetectedAt, &inc.Resolved); err != nil {
		return facility.Incident{}, err
	}
	inc.Level = facility.Level(level)
	inc.DetectedAt = inc.DetectedAt.UTC()
	return inc, nil
}

func (s *Store) CreateIncident(ctx context.Context, inc facility.Incident) (facility.Incident, error) {
	out, err := scanIncident(s.db.QueryRowContext(ctx, `
		insert into incidents (level, description, sensor_id, detected_at, resolved)
		values ($1, $2, $3, $4, $5)
		returning `+incidentColumns,
		string(inc.Level), inc.Description, inc.SensorID, inc.DetectedAt, inc.Resolved))
	if isCode(err, pgErrForeignKeyViolation) {
		return facility.Incident{}, facility.ErrNotFound
	}
	return out, err
}

func (s *Store) GetIncident(ctx context.Context, id int64) (facility.Incident, error) {
	inc, err := scanIncident(s.db.QueryRowContext(ctx, `select `+incidentColumns+` from incidents where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return facility.Incident{}, facility.ErrNotFound
	}
	return inc, err
}

func (s *Store) ListIncidents(ctx context.Context, f facility.IncidentFilter) ([]facility.Incident, error) {
	var (
		where []string
		args  []any
	)
	if f.SensorID != nil {
		args = append(args, *f.SensorID)
		where = append(where, "sensor_id = $"+strconv.Itoa(len(args)))
	}
	if f.Resolved != nil {
		args = append(args, *f.Resolved)
		where = append(where, "resolved = $"+strconv.Itoa(len(args)))
	}
	query := `select ` + incidentColumns + ` from incidents`
	if len(where) > 0 {
		query += ` where ` + strings.Join(where, " and ")
	}
	rows, err := s.db.QueryContext(ctx, query+` order by id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]facility.Incident, 0)
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

// UpdateIncident never clears resolved; the column only moves to true.
func (s *Store) UpdateIncident(ctx context.Context, inc facility.Incident) (facility.Incident, error) {
	out, err := scanIncident(s.db.QueryRowContext(ctx, `
		update incidents set description = $2, resolved = resolved or $3
		where id = $1
		returning `+incidentColumns, inc.ID, inc.Description, inc.Resolved))
	if errors.Is(err, sql.ErrNoRows) {
		return facility.Incident{}, facility.ErrNotFound
	}
	return out, err
}

func (s *Store) DeleteIncident(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `delete from incidents where id = $1`, id)
	if err != nil {
		return err
	}
	return affected(res, facility.ErrNotFound)
}
