package facility

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SensorType is the kind of hazard a sensor watches.
type SensorType string

const (
	SensorTemperature SensorType = "temperature"
	SensorSmoke       SensorType = "smoke"
	SensorMotion      SensorType = "motion"
	SensorWater       SensorType = "water"
)

// SensorTypes lists the accepted sensor types.
var SensorTypes = []SensorType{SensorTemperature, SensorSmoke, SensorMotion, SensorWater}

func (t SensorType) Valid() bool {
	for _, v := range SensorTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Level is the severity of an incident.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Levels are ordered from least to most severe.
var Levels = []Level{LevelLow, LevelMedium, LevelHigh, LevelCritical}

// Severity returns 1 for low up to 4 for critical, and 0 for unknown levels.
func (l Level) Severity() int {
	for i, v := range Levels {
		if l == v {
			return i + 1
		}
	}
	return 0
}

func (l Level) Valid() bool { return l.Severity() > 0 }

// Date is a calendar day encoded as YYYY-MM-DD. Timestamps are accepted on input.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

// NewDate truncates t to its UTC calendar day.
func NewDate(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts YYYY-MM-DD or RFC 3339.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return NewDate(t), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: invalid date %q", ErrInvalidInput, s)
	}
	return NewDate(t), nil
}

func (d Date) String() string { return d.Format(dateLayout) }

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: date must be a string", ErrInvalidInput)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Building is owned by exactly one user.
type Building struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Address   string     `json:"address"`
	OwnerID   int64      `json:"owner_id"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// Validate checks a building received from the API.
func (b Building) Validate() error {
	if b.ID <= 0 || b.OwnerID <= 0 {
		return fmt.Errorf("building: missing id or owner_id")
	}
	return nil
}

// Sensor belongs to exactly one building.
type Sensor struct {
	ID          int64      `json:"id"`
	Type        SensorType `json:"type"`
	Location    string     `json:"location"`
	InstalledAt *Date      `json:"installed_at,omitempty"`
	BuildingID  int64      `json:"building_id"`
	IsActive    bool       `json:"is_active"`
}

func (s Sensor) Validate() error {
	if s.ID <= 0 || s.BuildingID <= 0 {
		return fmt.Errorf("sensor: missing id or building_id")
	}
	if !s.Type.Valid() {
		return fmt.Errorf("sensor %d: unknown type %q", s.ID, s.Type)
	}
	return nil
}

// Incident belongs to exactly one sensor. Resolved never goes back to false.
type Incident struct {
	ID          int64     `json:"id"`
	Level       Level     `json:"level"`
	Description string    `json:"description,omitempty"`
	SensorID    int64     `json:"sensor_id"`
	DetectedAt  time.Time `json:"detected_at"`
	Resolved    bool      `json:"resolved"`
}

func (i Incident) Validate() error {
	if i.ID <= 0 || i.SensorID <= 0 {
		return fmt.Errorf("incident: missing id or sensor_id")
	}
	if !i.Level.Valid() {
		return fmt.Errorf("incident %d: unknown level %q", i.ID, i.Level)
	}
	return nil
}

// BuildingInput is the body of POST and PUT /buildings.
type BuildingInput struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

func (in BuildingInput) Normalize() (BuildingInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Address = strings.TrimSpace(in.Address)
	if in.Name == "" || in.Address == "" {
		return in, fmt.Errorf("%w: name and address are required", ErrInvalidInput)
	}
	return in, nil
}

// SensorInput is the body of POST and PUT /sensors.
type SensorInput struct {
	Type        SensorType `json:"type"`
	Location    string     `json:"location"`
	InstalledAt *Date      `json:"installed_at,omitempty"`
	BuildingID  int64      `json:"building_id"`
	IsActive    bool       `json:"is_active"`
}

func (in SensorInput) Normalize() (SensorInput, error) {
	in.Type = SensorType(strings.ToLower(strings.TrimSpace(string(in.Type))))
	in.Location = strings.TrimSpace(in.Location)
	if !in.Type.Valid() {
		return in, fmt.Errorf("%w: unknown sensor type %q", ErrInvalidInput, in.Type)
	}
	if in.Location == "" {
		return in, fmt.Errorf("%w: location is required", ErrInvalidInput)
	}
	if in.BuildingID <= 0 {
		return in, fmt.Errorf("%w: building_id is required", ErrInvalidInput)
	}
	return in, nil
}

// IncidentInput is the body of POST /incidents. Level defaults to medium and
// DetectedAt to the time of creation.
type IncidentInput struct {
	Level       Level      `json:"level,omitempty"`
	Description string     `json:"description,omitempty"`
	SensorID    int64      `json:"sensor_id"`
	DetectedAt  *time.Time `json:"detected_at,omitempty"`
}

func (in IncidentInput) Normalize() (IncidentInput, error) {
	in.Level = Level(strings.ToLower(strings.TrimSpace(string(in.Level))))
	if in.Level == "" {
		in.Level = LevelMedium
	}
	in.Description = strings.TrimSpace(in.Description)
	if !in.Level.Valid() {
		return in, fmt.Errorf("%w: unknown level %q", ErrInvalidInput, in.Level)
	}
	if in.SensorID <= 0 {
		return in, fmt.Errorf("%w: sensor_id is required", ErrInvalidInput)
	}
	return in, nil
}

// IncidentPatch is the body of PATCH /incidents/{id}. Absent fields are left unchanged.
type IncidentPatch struct {
	Resolved    *bool   `json:"resolved,omitempty"`
	Description *string `json:"description,omitempty"`
}

// ResolvePatch is the patch the console sends to resolve an incident.
func ResolvePatch() IncidentPatch {
	resolved := true
	return IncidentPatch{Resolved: &resolved}
}

// Apply returns inc with the patch applied. Reopening a resolved incident is rejected.
func (p IncidentPatch) Apply(inc Incident) (Incident, error) {
	if p.Resolved != nil {
		if !*p.Resolved && inc.Resolved {
			return inc, fmt.Errorf("%w: a resolved incident cannot be reopened", ErrInvalidInput)
		}
		inc.Resolved = inc.Resolved || *p.Resolved
	}
	if p.Description != nil {
		inc.Description = strings.TrimSpace(*p.Description)
	}
	return inc, nil
}

// SensorFilter narrows GET /sensors.
type SensorFilter struct {
	BuildingID *int64
}

func (f SensorFilter) Match(s Sensor) bool {
	return f.BuildingID == nil || s.BuildingID == *f.BuildingID
}

// IncidentFilter narrows GET /incidents.
type IncidentFilter struct {
	SensorID *int64
	Resolved *bool
}

func (f IncidentFilter) Match(i Incident) bool {
	if f.SensorID != nil && i.SensorID != *f.SensorID {
		return false
	}
	if f.Resolved != nil && i.Resolved != *f.Resolved {
		return false
	}
	return true
}
