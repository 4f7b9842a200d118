package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"firewatch.org/internal/auth"
	"firewatch.org/internal/facility"
	"firewatch.org/internal/session"
)

func (a *app) dispatch(ctx context.Context, command string, args []string) error {
	switch command {
	case "login":
		return a.login(ctx, args)
	case "register":
		return a.register(ctx, args)
	case "logout":
		a.manager.Logout(ctx)
		return a.router.Follow(ctx)
	case "whoami":
		return a.whoami(ctx)
	case "buildings":
		return a.router.Show(ctx, session.RouteBuildings)
	case "building":
		return a.show(ctx, args, session.BuildingRoute)
	case "sensor":
		return a.show(ctx, args, session.SensorRoute)
	case "incident":
		return a.show(ctx, args, session.IncidentRoute)
	case "report":
		return a.report(ctx, args)
	case "resolve":
		return a.withID(args, func(id int64) error { return a.router.ResolveIncident(ctx, id) })
	case "delete-incident":
		return a.withID(args, func(id int64) error { return a.router.DeleteIncident(ctx, id) })
	case "watch":
		return a.withID(args, func(id int64) error { return a.router.WatchSensor(ctx, a.client, id) })
	}
	return fmt.Errorf("unknown command %q", command)
}

func parseID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected exactly one id argument")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", args[0])
	}
	return id, nil
}

func (a *app) withID(args []string, fn func(int64) error) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}
	return fn(id)
}

func (a *app) show(ctx context.Context, args []string, route func(int64) string) error {
	return a.withID(args, func(id int64) error { return a.router.Show(ctx, route(id)) })
}

func (a *app) whoami(ctx context.Context) error {
	m := session.FromContext(ctx)
	if m == nil {
		m = a.manager
	}
	identity := m.Identity()
	if identity == nil {
		fmt.Fprintln(os.Stdout, "not signed in")
		return nil
	}
	role := "user"
	if identity.IsAdmin {
		role = "admin"
	}
	fmt.Fprintf(os.Stdout, "%s (#%d, %s)\n", identity.Email, identity.ID, role)
	return nil
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("login", pflag.ContinueOnError)
	email := fs.String("email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*email) == "" {
		v, err := promptLine("Email: ")
		if err != nil {
			return err
		}
		*email = v
	}
	password, err := promptPassword("Password: ")
	if err != nil {
		return err
	}
	if err := a.manager.Login(ctx, *email, password); err != nil {
		return err
	}
	return a.router.Follow(ctx)
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("register", pflag.ContinueOnError)
	username := fs.String("username", "", "display name")
	email := fs.String("email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*username) == "" || strings.TrimSpace(*email) == "" {
		return fmt.Errorf("register needs --username and --email")
	}
	password, err := promptPassword("Password: ")
	if err != nil {
		return err
	}
	confirm, err := promptPassword("Repeat password: ")
	if err != nil {
		return err
	}
	if password != confirm {
		return fmt.Errorf("passwords do not match")
	}
	reg := auth.Registration{Username: *username, Email: *email, Password: password}
	if err := a.manager.Register(ctx, reg); err != nil {
		return err
	}
	return a.router.Follow(ctx)
}

func (a *app) report(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("report", pflag.ContinueOnError)
	sensor := fs.Int64("sensor", 0, "sensor id")
	level := fs.String("level", string(facility.LevelMedium), "low, medium, high or critical")
	description := fs.String("description", "", "what was observed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *sensor <= 0 {
		return fmt.Errorf("report needs --sensor")
	}
	_, err := a.router.ReportIncident(ctx, facility.IncidentInput{
		SensorID:    *sensor,
		Level:       facility.Level(*level),
		Description: *description,
	})
	return err
}
