package commands

import (
	"database/sql"

	"go.uber.org/zap"

	"github.com/teranos/exemplar/ai/provider"
	"github.com/teranos/exemplar/ai/tracker"
	"github.com/teranos/exemplar/am"
	"github.com/teranos/exemplar/codegen"
	"github.com/teranos/exemplar/db"
	"github.com/teranos/exemplar/errors"
	"github.com/teranos/exemplar/logger"
	"github.com/teranos/exemplar/pipeline"
	"github.com/teranos/exemplar/version"
)

func loadConfig() (*am.Config, error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	return cfg, nil
}

// openDatabase opens and migrates the usage database named by cfg.
func openDatabase(cfg *am.Config) (*sql.DB, error) {
	path := cfg.GetDatabasePath()
	database, err := db.OpenWithMigrations(path, logger.ComponentLogger("db"))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", path)
	}
	return database, nil
}

// session is a pipeline plus the resources it holds open.
type session struct {
	cfg      *am.Config
	pipeline *pipeline.Pipeline
	database *sql.DB
	tracker  *tracker.UsageTracker
}

func (s *session) Close() {
	if s.database != nil {
		s.database.Close()
	}
}

// newSession builds a pipeline. withBackend selects a code generation
// backend and opens the usage database.
func newSession(withBackend bool) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg}
	opts := pipeline.Options{Config: cfg, Version: version.Get().Release()}

	if withBackend {
		backend, err := newBackend(cfg, logger.ComponentLogger("backend"))
		if err != nil {
			return nil, err
		}
		opts.Backend = backend

		if cfg.Database.TrackUsage {
			database, err := openDatabase(cfg)
			if err != nil {
				return nil, err
			}
			s.database = database
			s.tracker = tracker.NewUsageTracker(database, logger.ComponentLogger("tracker"))
			opts.Tracker = s.tracker
		}
	}

	s.pipeline = pipeline.New(opts, logger.ComponentLogger("pipeline"))
	return s, nil
}

func newBackend(cfg *am.Config, log *zap.SugaredLogger) (codegen.Backend, error) {
	if len(provider.GetAvailableProviders(cfg)) == 0 {
		return nil, errors.WithHint(
			errors.NewInvalidConfigError("no code generation backend is configured"),
			"export ANTHROPIC_API_KEY or OPENROUTER_API_KEY, or enable backend.local in am.toml")
	}
	client, err := provider.NewAIClient(cfg, log)
	if err != nil {
		return nil, err
	}
	log.Infow("backend selected", logger.FieldProvider, client.Provider(), logger.FieldModel, client.Model())
	return codegen.NewLLMBackend(client, cfg.Backend.RequestsPerMinute, log), nil
}
