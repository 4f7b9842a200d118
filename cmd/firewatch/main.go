// Command firewatch is the terminal console for the firewatch API. It keeps
// one session per profile and renders views through the guarded router.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"firewatch.org/internal/config"
	"firewatch.org/internal/console"
	"firewatch.org/internal/facility/remote"
	"firewatch.org/internal/obs"
	"firewatch.org/internal/session"
)

var version = "0.1.0"

const usage = `usage: firewatch [flags] <command> [args]

commands:
  login [--email E]                  sign in
  register --username U --email E    create an account and sign in
  logout                             end the session
  whoami                             show the signed-in user
  buildings                          list buildings
  building ID                        show a building and its sensors
  sensor ID                          show a sensor and its incidents
  incident ID                        show an incident
  report --sensor ID [--level L]     raise an incident
  resolve ID                         resolve an incident
  delete-incident ID                 delete an incident
  watch SENSOR_ID                    follow a sensor's incidents live

flags:
`

func main() {
	global := pflag.NewFlagSet("firewatch", pflag.ContinueOnError)
	configPath := global.String("config", os.Getenv("FIREWATCH_CONFIG"), "path to a YAML config file")
	verbose := global.BoolP("verbose", "v", false, "write diagnostic logs to stderr")
	global.SetInterspersed(false)
	global.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		global.PrintDefaults()
	}
	if err := global.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}
	if global.NArg() == 0 {
		global.Usage()
		os.Exit(2)
	}

	if *verbose {
		obs.SetOutput(os.Stderr)
	} else {
		obs.SetOutput(io.Discard)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, global.Arg(0), global.Args()[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "firewatch:", message(err))
		stop()
		os.Exit(1)
	}
}

// app bundles the wired console for one command invocation.
type app struct {
	client  *remote.Client
	manager *session.Manager
	router  *console.Router
}

func run(ctx context.Context, configPath, command string, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Client.Validate(); err != nil {
		return err
	}

	storage, err := openStorage(cfg.Client)
	if err != nil {
		return err
	}
	store := session.NewStore(storage)
	defer store.Close()

	client, err := remote.New(cfg.Client.APIURL,
		remote.WithTimeout(cfg.Client.Timeout),
		remote.WithTokenSource(store),
		remote.WithUserAgent("firewatch/"+version),
	)
	if err != nil {
		return err
	}

	var router *console.Router
	manager := session.NewManager(store, client,
		session.WithNavigator(session.NavigatorFunc(func(route string) { router.Navigate(route) })),
		session.WithMetrics(session.NewMetrics(prometheus.NewRegistry())),
	)
	client.SetUnauthorizedHandler(manager)
	router = console.NewRouter(manager, client, os.Stdout)
	defer router.Close()

	ctx = session.NewContext(ctx, manager)
	if err := manager.Start(ctx); err != nil {
		// A broken stored session is dropped; the user is simply signed out.
		obs.Component("firewatch").Warn("session not restored", "error", err)
	}

	a := &app{client: client, manager: manager, router: router}
	return a.dispatch(ctx, command, args)
}

func openStorage(c config.Client) (session.Storage, error) {
	switch c.SessionStore {
	case config.StorageMemory:
		return session.NewMemoryStorage(), nil
	case config.StorageRedis:
		rdb, err := session.ConnectRedis(c.RedisURL)
		if err != nil {
			return nil, err
		}
		return session.NewRedisStorage(rdb, c.RedisPrefix, c.SessionTTL), nil
	default:
		path := c.SessionPath
		if path == "" {
			p, err := session.DefaultFilePath()
			if err != nil {
				return nil, err
			}
			path = p
		}
		return session.NewFileStorage(path), nil
	}
}

// message picks the user-facing text for err.
func message(err error) string {
	var authErr *session.AuthError
	if errors.As(err, &authErr) {
		return authErr.Message
	}
	if detail := remote.DetailOf(err); detail != "" {
		return detail
	}
	return err.Error()
}
