package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/softwerkskammer/Agora-sub000/internal/activitystore"
	"github.com/softwerkskammer/Agora-sub000/internal/config"
	"github.com/softwerkskammer/Agora-sub000/internal/db"
	"github.com/softwerkskammer/Agora-sub000/internal/events"
	"github.com/softwerkskammer/Agora-sub000/internal/member"
	"github.com/softwerkskammer/Agora-sub000/internal/migrate"
	"github.com/softwerkskammer/Agora-sub000/internal/persistence"
	"github.com/softwerkskammer/Agora-sub000/internal/registration"
	"github.com/softwerkskammer/Agora-sub000/internal/socrates"
	"github.com/softwerkskammer/Agora-sub000/internal/waitinglist"
)

// App holds the opened storage and the services built on it.
type App struct {
	Config   *config.Config
	Location *time.Location
	Log      zerolog.Logger

	// SQL is the workspace database. It carries the event log, and the
	// documents too unless storage.driver is postgres.
	SQL  *sql.DB
	Docs persistence.Store

	Members      member.Store
	Activities   activitystore.Store
	Registration *registration.Service
	Waitinglist  *waitinglist.Service
	Socrates     *socrates.Service
}

// NewLogger builds the process logger from the log section.
func NewLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stderr
	}
	if cfg.Log.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil || cfg.Log.Level == "" {
		level = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// Open connects the configured storage, migrates the workspace database and
// wires the services.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	backoff, err := cfg.ConnectBackoff()
	if err != nil {
		return nil, err
	}
	window, err := cfg.ReservationWindow()
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: cfg.Storage.Workspace, Attempts: cfg.Storage.Connect.Attempts, Backoff: backoff})
	if err != nil {
		return nil, err
	}
	applied, err := migrate.Migrate(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	for _, m := range applied {
		log.Info().Str("migration", m.Name).Msg("schema migrated")
	}

	var docs persistence.Store
	switch cfg.Storage.Driver {
	case "postgres":
		pg, err := persistence.OpenPostgres(ctx, persistence.PGConfig{
			DSN:      cfg.Storage.DSN,
			Attempts: cfg.Storage.Connect.Attempts,
			Backoff:  backoff,
		}, log)
		if err != nil {
			conn.Close()
			return nil, err
		}
		docs = pg
	default:
		docs = persistence.NewSQLStore(conn)
	}

	a := &App{
		Config:   cfg,
		Location: loc,
		Log:      log,
		SQL:      conn,
		Docs:     docs,
	}
	a.Members = member.Store{Docs: docs}
	a.Activities = activitystore.Store{Docs: docs}
	a.Registration = registration.New(a.Activities, cfg.Registration.ConflictRetries, log.With().Str("component", "registration").Logger())
	a.Waitinglist = &waitinglist.Service{
		Store:   waitinglist.Store{Docs: docs},
		Members: a.Members,
		Now:     time.Now,
		Log:     log.With().Str("component", "waitinglist").Logger(),
	}
	a.Socrates = &socrates.Service{
		Writer:  events.Writer{DB: conn},
		Reader:  events.Reader{DB: conn},
		Stream:  cfg.Socrates.Stream,
		Window:  window,
		Limits:  cfg.Socrates.RoomTypeLimits,
		Retries: cfg.Registration.ConflictRetries,
		Now:     time.Now,
		Log:     log.With().Str("component", "socrates").Logger(),
	}
	log.Debug().Str("driver", cfg.Storage.Driver).Str("workspace", db.Path(cfg.Storage.Workspace)).Msg("storage opened")
	return a, nil
}

// SetNow replaces the clock of every service.
func (a *App) SetNow(now func() time.Time) {
	a.Registration.Now = now
	a.Waitinglist.Now = now
	a.Socrates.Now = now
}

func (a *App) Close() error {
	var first error
	// the SQLite document store shares a.SQL
	if _, shared := a.Docs.(*persistence.SQLStore); !shared && a.Docs != nil {
		first = a.Docs.Close()
	}
	if err := a.SQL.Close(); err != nil && first == nil {
		first = err
	}
	return first
}
