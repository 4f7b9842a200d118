package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"firewatch.org/internal/auth"
	"firewatch.org/internal/facility"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		_ = db.Close()
	})
	return New(db), mock
}

var created = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func TestCreateUserAssignsIDAndMapsConflict(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectQuery("insert into users").
		WithArgs("alice", "alice@example.com", "hash", false).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), created))
	u := &auth.User{Username: "alice", Email: "Alice@Example.com", PasswordHash: "hash"}
	if err := store.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.ID != 7 || !u.CreatedAt.Equal(created) {
		t.Fatalf("unexpected user: %+v", u)
	}

	mock.ExpectQuery("insert into users").WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})
	if err := store.CreateUser(context.Background(), &auth.User{Username: "alice", Email: "alice@example.com", PasswordHash: "x"}); !errors.Is(err, auth.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestFindUserByEmail(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectQuery(`select id, username, email, password_hash, is_admin, created_at from users where lower\(email\)`).
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "email", "password_hash", "is_admin", "created_at"}).
			AddRow(int64(7), "alice", "alice@example.com", "hash", true, created))
	u, err := store.FindUserByEmail(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("FindUserByEmail: %v", err)
	}
	if u.ID != 7 || !u.IsAdmin {
		t.Fatalf("unexpected user: %+v", u)
	}

	mock.ExpectQuery("from users where id").WithArgs(int64(99)).WillReturnError(sql.ErrNoRows)
	if _, err := store.FindUser(context.Background(), 99); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBuildingRoundTrip(t *testing.T) {
	store, mock := newMock(t)
	cols := []string{"id", "name", "address", "owner_id", "created_at"}

	mock.ExpectQuery("insert into buildings").
		WithArgs("HQ", "1 Main St", int64(3)).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(1), "HQ", "1 Main St", int64(3), created))
	b, err := store.CreateBuilding(context.Background(), facility.Building{Name: "HQ", Address: "1 Main St", OwnerID: 3})
	if err != nil {
		t.Fatalf("CreateBuilding: %v", err)
	}
	if b.ID != 1 || b.CreatedAt == nil || !b.CreatedAt.Equal(created) {
		t.Fatalf("unexpected building: %+v", b)
	}

	mock.ExpectQuery("insert into buildings").WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})
	if _, err := store.CreateBuilding(context.Background(), facility.Building{Name: "X", Address: "Y", OwnerID: 404}); !errors.Is(err, facility.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing owner, got %v", err)
	}

	mock.ExpectQuery("from buildings where id").WithArgs(int64(2)).WillReturnError(sql.ErrNoRows)
	if _, err := store.GetBuilding(context.Background(), 2); !errors.Is(err, facility.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	mock.ExpectExec("delete from buildings").WithArgs(int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.DeleteBuilding(context.Background(), 1); err != nil {
		t.Fatalf("DeleteBuilding: %v", err)
	}
	mock.ExpectExec("delete from buildings").WithArgs(int64(1)).WillReturnResult(sqlmock.NewResult(0, 0))
	if err := store.DeleteBuilding(context.Background(), 1); !errors.Is(err, facility.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestSensorInstalledAtIsOptional(t *testing.T) {
	store, mock := newMock(t)
	cols := []string{"id", "type", "location", "installed_at", "building_id", "is_active"}
	installed := time.Date(2023, 3, 14, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("from sensors where building_id").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(1), "smoke", "lobby", installed, int64(1), true).
			AddRow(int64(2), "water", "basement", nil, int64(1), false))
	id := int64(1)
	sensors, err := store.ListSensors(context.Background(), facility.SensorFilter{BuildingID: &id})
	if err != nil {
		t.Fatalf("ListSensors: %v", err)
	}
	if len(sensors) != 2 {
		t.Fatalf("expected 2 sensors, got %d", len(sensors))
	}
	if sensors[0].InstalledAt == nil || sensors[0].InstalledAt.String() != "2023-03-14" {
		t.Fatalf("unexpected installed_at: %v", sensors[0].InstalledAt)
	}
	if sensors[1].InstalledAt != nil || sensors[1].Type != facility.SensorWater {
		t.Fatalf("unexpected second sensor: %+v", sensors[1])
	}

	d := facility.NewDate(installed)
	mock.ExpectQuery("insert into sensors").
		WithArgs("smoke", "lobby", "2023-03-14", int64(1), true).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(3), "smoke", "lobby", installed, int64(1), true))
	if _, err := store.CreateSensor(context.Background(), facility.Sensor{Type: facility.SensorSmoke, Location: "lobby", InstalledAt: &d, BuildingID: 1, IsActive: true}); err != nil {
		t.Fatalf("CreateSensor: %v", err)
	}
}

func TestListIncidentsBuildsFilter(t *testing.T) {
	store, mock := newMock(t)
	cols := []string{"id", "level", "description", "sensor_id", "detected_at", "resolved"}

	mock.ExpectQuery(`from incidents where sensor_id = \$1 and resolved = \$2 order by id`).
		WithArgs(int64(4), false).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(9), "high", "smoke", int64(4), created, false))
	sensorID, resolved := int64(4), false
	items, err := store.ListIncidents(context.Background(), facility.IncidentFilter{SensorID: &sensorID, Resolved: &resolved})
	if err != nil {
		t.Fatalf("ListIncidents: %v", err)
	}
	if len(items) != 1 || items[0].Level != facility.LevelHigh {
		t.Fatalf("unexpected incidents: %+v", items)
	}

	mock.ExpectQuery(`from incidents order by id`).WillReturnRows(sqlmock.NewRows(cols))
	items, err = store.ListIncidents(context.Background(), facility.IncidentFilter{})
	if err != nil {
		t.Fatalf("ListIncidents: %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", items)
	}
}

func TestUpdateIncidentNeverReopens(t *testing.T) {
	store, mock := newMock(t)
	cols := []string{"id", "level", "description", "sensor_id", "detected_at", "resolved"}

	mock.ExpectQuery(`update incidents set description = \$2, resolved = resolved or \$3`).
		WithArgs(int64(9), "checked", true).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(9), "high", "checked", int64(4), created, true))
	inc, err := store.UpdateIncident(context.Background(), facility.Incident{ID: 9, Description: "checked", Resolved: true})
	if err != nil {
		t.Fatalf("UpdateIncident: %v", err)
	}
	if !inc.Resolved {
		t.Fatal("expected resolved incident")
	}

	mock.ExpectQuery("update incidents").WillReturnError(sql.ErrNoRows)
	if _, err := store.UpdateIncident(context.Background(), facility.Incident{ID: 10}); !errors.Is(err, facility.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
