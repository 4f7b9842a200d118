package console

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"firewatch.org/internal/auth"
	"firewatch.org/internal/facility"
	"firewatch.org/internal/incident"
)

// Theme holds the styles used to render pages.
type Theme struct {
	Title    lipgloss.Style
	Label    lipgloss.Style
	Muted    lipgloss.Style
	Notice   lipgloss.Style
	Action   lipgloss.Style
	Resolved lipgloss.Style
	Levels   map[facility.Level]lipgloss.Style
}

// DefaultTheme uses ANSI colors so it degrades on terminals without true color.
func DefaultTheme() Theme {
	return Theme{
		Title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Label:    lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		Muted:    lipgloss.NewStyle().Faint(true),
		Notice:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11")),
		Action:   lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		Resolved: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		Levels: map[facility.Level]lipgloss.Style{
			facility.LevelLow:      lipgloss.NewStyle().Foreground(lipgloss.Color("7")),
			facility.LevelMedium:   lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
			facility.LevelHigh:     lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
			facility.LevelCritical: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		},
	}
}

func (t Theme) level(l facility.Level) string {
	if s, ok := t.Levels[l]; ok {
		return s.Render(string(l))
	}
	return string(l)
}

func (t Theme) field(label, value string) string {
	return t.Label.Render(fmt.Sprintf("%-12s", label)) + value
}

// table renders rows with columns padded to their widest cell.
func table(rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}
	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); i < len(widths) && w > widths[i] {
				widths[i] = w
			}
		}
	}
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = lipgloss.NewStyle().Width(widths[i]).Render(cell)
		}
		lines = append(lines, strings.TrimRight(strings.Join(cells, "  "), " "))
	}
	return strings.Join(lines, "\n")
}

func (t Theme) actions(set auth.ActionSet, offered ...auth.Action) string {
	var names []string
	for _, a := range offered {
		if set.Has(a) {
			names = append(names, string(a))
		}
	}
	if len(names) == 0 {
		return t.Muted.Render("read only")
	}
	return t.Action.Render("actions: " + strings.Join(names, ", "))
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func (LoginPage) Render(t Theme) string {
	return lipgloss.JoinVertical(lipgloss.Left,
		t.Title.Render("Sign in"),
		t.Muted.Render("Run `firewatch login --email <email>` to start a session."),
	)
}

func (RegisterPage) Render(t Theme) string {
	return lipgloss.JoinVertical(lipgloss.Left,
		t.Title.Render("Create an account"),
		t.Muted.Render("Run `firewatch register --username <name> --email <email>`."),
	)
}

func (p BuildingsPage) Render(t Theme) string {
	header := "Buildings"
	if p.Identity != nil && p.Identity.Email != "" {
		header += t.Muted.Render("  signed in as " + p.Identity.Email)
	}
	if len(p.Buildings) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, t.Title.Render(header), t.Muted.Render("No buildings yet."))
	}
	rows := [][]string{{"ID", "NAME", "ADDRESS", "OWNER", "EDIT"}}
	for _, b := range p.Buildings {
		rows = append(rows, []string{
			fmt.Sprint(b.ID), b.Name, b.Address, fmt.Sprint(b.OwnerID), yesNo(p.Editable[b.ID]),
		})
	}
	return lipgloss.JoinVertical(lipgloss.Left, t.Title.Render(header), table(rows))
}

func (p BuildingPage) Render(t Theme) string {
	lines := []string{
		t.Title.Render(p.Building.Name),
		t.field("Address", p.Building.Address),
		t.field("Owner", fmt.Sprint(p.Building.OwnerID)),
		t.actions(p.Actions, auth.ActionEditBuilding, auth.ActionDeleteBuilding, auth.ActionManageSensors),
		"",
	}
	if len(p.Sensors) == 0 {
		lines = append(lines, t.Muted.Render("No sensors installed."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}
	rows := [][]string{{"ID", "TYPE", "LOCATION", "INSTALLED", "ACTIVE"}}
	for _, s := range p.Sensors {
		installed := "-"
		if s.InstalledAt != nil {
			installed = s.InstalledAt.String()
		}
		rows = append(rows, []string{fmt.Sprint(s.ID), string(s.Type), s.Location, installed, yesNo(s.IsActive)})
	}
	lines = append(lines, table(rows))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (p SensorPage) Render(t Theme) string {
	building := t.Muted.Render("unavailable")
	if p.Building != nil {
		building = fmt.Sprintf("%s (#%d)", p.Building.Name, p.Building.ID)
	}
	lines := []string{
		t.Title.Render(fmt.Sprintf("Sensor #%d %s", p.Sensor.ID, p.Sensor.Type)),
		t.field("Location", p.Sensor.Location),
		t.field("Building", building),
		t.field("Active", yesNo(p.Sensor.IsActive)),
		t.actions(p.Actions, auth.ActionManageSensors, auth.ActionResolveIncident, auth.ActionDeleteIncident),
		"",
	}
	lines = append(lines, renderIncidents(t, p.Incidents))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderIncidents(t Theme, list *incident.List) string {
	if list == nil {
		return t.Muted.Render("No incidents.")
	}
	items := list.Items()
	if len(items) == 0 {
		return t.Muted.Render("No incidents.")
	}
	rows := [][]string{{"ID", "LEVEL", "DETECTED", "STATE", "DESCRIPTION"}}
	for _, inc := range items {
		rows = append(rows, []string{
			fmt.Sprint(inc.ID),
			t.level(inc.Level),
			inc.DetectedAt.Local().Format("2006-01-02 15:04"),
			renderState(t, inc),
			inc.Description,
		})
	}
	return table(rows)
}

func renderState(t Theme, inc facility.Incident) string {
	state := incident.StateOf(inc)
	if state == incident.Resolved {
		return t.Resolved.Render(state.String())
	}
	return state.String()
}

func (p IncidentPage) Render(t Theme) string {
	description := p.Incident.Description
	if description == "" {
		description = t.Muted.Render("none")
	}
	offered := []auth.Action{auth.ActionDeleteIncident}
	if incident.StateOf(p.Incident) == incident.Open {
		offered = append([]auth.Action{auth.ActionResolveIncident}, offered...)
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		t.Title.Render(fmt.Sprintf("Incident #%d", p.Incident.ID)),
		t.field("Level", t.level(p.Incident.Level)),
		t.field("State", renderState(t, p.Incident)),
		t.field("Sensor", fmt.Sprint(p.Incident.SensorID)),
		t.field("Detected", p.Incident.DetectedAt.Local().Format("2006-01-02 15:04:05")),
		t.field("Description", description),
		t.actions(p.Actions, offered...),
	)
}
