// Package apps wires the dependencies shared by the API server and the admin CLI.
package apps

import (
	"context"
	"fmt"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/examreg/core"
	"github.com/trezcool/examreg/core/export"
	"github.com/trezcool/examreg/core/ingest"
	"github.com/trezcool/examreg/core/registration"
	"github.com/trezcool/examreg/core/result"
	"github.com/trezcool/examreg/core/school"
	cachesvc "github.com/trezcool/examreg/services/cache"
	metricsvc "github.com/trezcool/examreg/services/metrics"
	"github.com/trezcool/examreg/storage/database"
	sqlxrepos "github.com/trezcool/examreg/storage/database/sqlx"
)

// App holds the wired services.
type App struct {
	Conf       *core.Config
	Logger     core.Logger
	DB         *sqlx.DB
	Validate   *validator.Validate
	Translator ut.Translator

	Schools       *school.Service
	Results       *result.Service
	Registrations *registration.Service
	Exporter      *export.Streamer

	Metrics *metricsvc.Prometheus // nil when disabled
	Cache   *cachesvc.RedisCache  // nil when no redis address is configured
}

// New sets up the database (creating and migrating it when needed) and every service on top of it.
func New(ctx context.Context, conf *core.Config, logger core.Logger) (*App, error) {
	db, err := SetUpDB(conf)
	if err != nil {
		return nil, errors.Wrap(err, "setting up database")
	}
	app, err := NewWithDB(ctx, conf, logger, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return app, nil
}

// NewWithDB builds the services on an already migrated database.
func NewWithDB(ctx context.Context, conf *core.Config, logger core.Logger, db *sqlx.DB) (*App, error) {
	app := &App{
		Conf:       conf,
		Logger:     logger,
		DB:         db,
		Validate:   validator.New(),
		Translator: NewTranslator(),
	}
	core.InitValidators(app.Validate, app.Translator)

	dir, err := school.LoadDirectory()
	if err != nil {
		return nil, errors.Wrap(err, "loading school directory")
	}

	var ingestMetrics ingest.Metrics
	if conf.Metrics.Enabled {
		app.Metrics = metricsvc.NewPrometheus()
		ingestMetrics = app.Metrics
	}

	schRepo := sqlxrepos.NewSchoolRepository(db)
	regRepo := sqlxrepos.NewRegistrationRepository(db, conf.Ingest.ReplaceMaxWait, conf.Ingest.ReplaceTimeout)
	opts := ingest.OptionsFromConfig(conf.Ingest)

	app.Schools = school.NewService(schRepo, dir)
	app.Results = result.NewService(sqlxrepos.NewResultRepository(db), dir, app.Validate, logger, opts, ingestMetrics)
	app.Registrations = registration.NewService(regRepo, app.Schools, app.Validate, logger, opts, ingestMetrics)

	exportDeps := export.Deps{
		Source:     regRepo,
		SchoolData: app.Schools,
		Directory:  dir,
		Logger:     logger,
	}
	if app.Metrics != nil {
		exportDeps.Metrics = app.Metrics
	}
	if app.Cache, err = cachesvc.NewRedisCache(ctx, conf.Redis); err != nil {
		return nil, errors.Wrap(err, "connecting to redis")
	}
	if app.Cache != nil {
		exportDeps.Cache = app.Cache
	}
	app.Exporter = export.NewStreamer(exportDeps, export.Options{
		ChunkSize:  conf.Export.ChunkSize,
		CodeMapTTL: conf.Export.CodeMapTTL,
	})
	return app, nil
}

func (app *App) Close() error {
	if app.Cache != nil {
		if err := app.Cache.Close(); err != nil {
			app.Logger.Warn("closing redis", err)
		}
	}
	return app.DB.Close()
}

func (app *App) String() string {
	return fmt.Sprintf("%s schools=%d", app.Conf, app.Schools.Directory().Len())
}

// SetUpDB creates the database when needed, opens it and applies pending migrations.
func SetUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func NewTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
