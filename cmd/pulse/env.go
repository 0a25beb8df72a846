package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/h0rv/issuepulse/internal/auth"
	"github.com/h0rv/issuepulse/internal/backend"
	"github.com/h0rv/issuepulse/internal/config"
	"github.com/h0rv/issuepulse/internal/domain"
	"github.com/h0rv/issuepulse/internal/logger"
	"github.com/h0rv/issuepulse/internal/names"
	"github.com/h0rv/issuepulse/internal/progress"
	"github.com/h0rv/issuepulse/internal/store"
	"github.com/rs/zerolog"
)

// errNoSource is returned when neither a fixture nor a backend is configured.
var errNoSource = errors.New("no data source: pass --fixture or set PULSE_BACKEND_URL")

// repository is what every command reads from.
type repository interface {
	progress.ProjectRepository
	progress.IssueRepository
}

// env bundles the wiring shared by the commands.
type env struct {
	cfg    config.Config
	log    zerolog.Logger
	loc    *time.Location
	repo   repository
	names  names.Resolver
	client *backend.Client // nil in fixture mode
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if fixtureFlag != "" {
		cfg.Fixture = fixtureFlag
	}
	return cfg, nil
}

// setup loads configuration and opens the data source. Fixture files are
// watched for changes until ctx ends.
func setup(ctx context.Context) (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg)
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg, log: log, loc: loc}
	switch {
	case cfg.Fixture != "":
		f, err := store.LoadFixture(cfg.Fixture)
		if err != nil {
			return nil, err
		}
		s := store.New()
		s.Apply(f)
		if err := s.Watch(ctx, cfg.Fixture, log); err != nil {
			log.Warn().Err(err).Msg("fixture changes will not be picked up")
		}
		go func() {
			<-ctx.Done()
			s.Close()
		}()
		e.repo = s
		e.names = s
		log.Debug().Str("fixture", cfg.Fixture).Int("projects", len(f.Projects)).Msg("using fixture")

	case cfg.BackendURL != "":
		token, err := auth.GetToken(cfg.TokenFile)
		if err != nil {
			return nil, err
		}
		client := backend.New(cfg.BackendURL, token,
			backend.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
			backend.WithLogger(log),
		)
		e.client = client
		e.repo = backend.NewPoller(client, cfg.PollInterval, log)
		e.names = client
		log.Debug().Str("backend", cfg.BackendURL).Dur("interval", cfg.PollInterval).Msg("using backend")

	default:
		return nil, errNoSource
	}
	return e, nil
}

// user resolves the acting user: --user, then the config file, then PULSE_USER_ID.
func (e *env) user() (string, error) {
	return auth.RequireUser(auth.Chain{
		auth.Static(userFlag),
		auth.Static(e.cfg.UserID),
		auth.EnvIdentity{},
	})
}

func (e *env) aggregator() *progress.Aggregator {
	return progress.New(e.repo, e.repo,
		progress.WithLocation(e.loc),
		progress.WithLogger(e.log),
	)
}

// filter returns the --filter value, falling back to the configured default.
func (e *env) filter() (domain.Filter, error) {
	if filterFlag == "" {
		return e.cfg.DefaultFilter(), nil
	}
	f, err := domain.ParseFilter(filterFlag)
	if err != nil {
		return domain.AllTime, fmt.Errorf("invalid --filter: %w", err)
	}
	return f, nil
}
