// Command smoke runs a register, building, sensor, incident, resolve round
// trip against a live firewatch API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"firewatch.org/internal/auth"
	"firewatch.org/internal/facility"
	"firewatch.org/internal/facility/remote"
	"firewatch.org/internal/ids"
	"firewatch.org/internal/session"
)

func main() {
	addr := os.Getenv("FIREWATCH_API_URL")
	if addr == "" {
		addr = "http://localhost:8080"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	store := session.NewStore(session.NewMemoryStorage())
	defer store.Close()
	client, err := remote.New(addr, remote.WithTokenSource(store), remote.WithUserAgent("firewatch-smoke"))
	if err != nil {
		log.Fatalf("client: %v", err)
	}

	suffix := strings.ToLower(ids.New())
	pair, err := client.Register(ctx, auth.Registration{
		Username: "smoke-" + suffix,
		Email:    "smoke-" + suffix + "@example.com",
		Password: "smoke-password-" + suffix,
	})
	if err != nil {
		log.Fatalf("register: %v", err)
	}
	if err := store.Save(ctx, pair); err != nil {
		log.Fatalf("save session: %v", err)
	}
	me := store.CurrentIdentity()

	building, err := client.CreateBuilding(ctx, facility.BuildingInput{Name: "Smoke HQ " + suffix, Address: "1 Test Way"})
	if err != nil {
		log.Fatalf("create building: %v", err)
	}
	if building.OwnerID != me.ID {
		log.Fatalf("building owner = %d, want %d", building.OwnerID, me.ID)
	}

	sensor, err := client.CreateSensor(ctx, facility.SensorInput{
		Type:       facility.SensorSmoke,
		Location:   "Lobby",
		BuildingID: building.ID,
		IsActive:   true,
	})
	if err != nil {
		log.Fatalf("create sensor: %v", err)
	}

	inc, err := client.ReportIncident(ctx, facility.IncidentInput{SensorID: sensor.ID, Level: facility.LevelHigh, Description: "smoke test"})
	if err != nil {
		log.Fatalf("report incident: %v", err)
	}
	if err := client.ResolveIncident(ctx, inc.ID); err != nil {
		log.Fatalf("resolve incident: %v", err)
	}
	got, err := client.GetIncident(ctx, inc.ID)
	if err != nil {
		log.Fatalf("get incident: %v", err)
	}
	if !got.Resolved {
		log.Fatalf("incident %d not resolved", inc.ID)
	}

	if err := client.DeleteBuilding(ctx, building.ID); err != nil {
		log.Fatalf("delete building: %v", err)
	}
	if _, err := client.GetSensor(ctx, sensor.ID); !errors.Is(err, facility.ErrNotFound) {
		log.Fatalf("sensor survived building delete: %v", err)
	}

	fmt.Printf("firewatch smoke test passed: user=%d building=%d sensor=%d incident=%d\n", me.ID, building.ID, sensor.ID, inc.ID)
}
