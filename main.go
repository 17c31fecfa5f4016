// Planwerk is a small scheduling server for recurring and one-off
// appointments. Admins manage calendars over a JSON API, staff read them and
// document completed appointments; state lives in sqlite.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/planwerk/planwerk/engine"
	"github.com/planwerk/planwerk/engine/db"
	"github.com/planwerk/planwerk/modules/auth"
	"github.com/planwerk/planwerk/modules/docs"
	"github.com/planwerk/planwerk/modules/pruning"
	"github.com/planwerk/planwerk/modules/schedule"
)

type Config struct {
	HttpAddr    string `envDefault:":8080"`
	DBPath      string `envDefault:"planwerk.sqlite3"`
	AuthKeyFile string `envDefault:"auth.pem"`

	// AdminEmail bootstraps the initial admin member on startup.
	AdminEmail string
	AdminName  string

	// PruneTTL is how long soft-deleted rows are kept. Default 2 years.
	PruneTTL time.Duration `envDefault:"17520h"`
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	conf, err := env.ParseAsWithOptions[Config](env.Options{Prefix: "PLANWERK_", UseFieldNameByDefault: true})
	if err != nil {
		panic(err)
	}

	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		err := engine.CheckHealthProbe("http://localhost:8080/healthz") // assume server is running on the default port
		if err != nil {
			panic(err)
		}
		return
	}

	database, err := db.Open(conf.DBPath)
	if err != nil {
		panic(err)
	}

	router := engine.NewRouter(nil)
	router.HandleFunc("GET /healthz", engine.ServeHealthProbe(database))

	authMod := auth.New(database, engine.NewTokenIssuer(conf.AuthKeyFile))
	router.Authenticator = authMod

	app := engine.NewApp(conf.HttpAddr, router)
	app.Add(authMod)
	app.Add(schedule.New(database))
	app.Add(docs.New(database))
	app.Add(pruning.New(database, conf.PruneTTL))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if conf.AdminEmail != "" {
		id, err := authMod.EnsureMember(ctx, conf.AdminEmail, conf.AdminName, true)
		if err != nil {
			panic(err)
		}
		slog.Info("ensured admin member", "id", id, "email", conf.AdminEmail)
	}

	app.Run(ctx)
}
