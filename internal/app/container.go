// Package app wires configuration, storage and services shared by the
// binaries under cmd/.
package app

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/codeowl/platform/internal/common/database"
	"github.com/codeowl/platform/internal/common/metrics"
	leaguemodels "github.com/codeowl/platform/internal/league/models"
	leaguerepo "github.com/codeowl/platform/internal/league/repository"
	leagueservices "github.com/codeowl/platform/internal/league/services"
	lessonmodels "github.com/codeowl/platform/internal/lesson/models"
	profilemodels "github.com/codeowl/platform/internal/profile/models"
	"github.com/codeowl/platform/pkg/config"
	"github.com/codeowl/platform/pkg/logger"
)

// Version is reported by the health endpoints.
const Version = "1.0.0"

// Container holds the process-wide dependencies.
type Container struct {
	Config  *config.Config
	DB      *gorm.DB
	Metrics *metrics.Metrics
	Leagues *leagueservices.LeagueService
}

// Models lists every table the platform owns.
func Models() []interface{} {
	var all []interface{}
	all = append(all, lessonmodels.All()...)
	all = append(all, profilemodels.All()...)
	all = append(all, leaguemodels.All()...)
	return all
}

// Load reads the configuration and installs the global logger.
func Load() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := logger.InitWith(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

// New opens the database, migrates it and builds the league service.
func New(cfg *config.Config) (*Container, error) {
	log := logger.Get().Named("app")

	if err := database.InitWithType(cfg.Database.Type, cfg.Database.DSN); err != nil {
		return nil, err
	}
	db := database.GetDB()
	log.Info("database connected", zap.String("type", cfg.Database.Type))

	if err := database.Migrate(db, Models()...); err != nil {
		return nil, err
	}

	x, err := database.Sqlx(db)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlx handle: %w", err)
	}

	m := metrics.New()
	leagues := leagueservices.NewLeagueService(
		leaguerepo.NewLeagueRepository(db),
		leaguerepo.NewLockRepository(db),
		leaguerepo.NewProcedure(x),
		m,
	)

	return &Container{Config: cfg, DB: db, Metrics: m, Leagues: leagues}, nil
}

// Close releases the database handle.
func (c *Container) Close() error {
	return database.Close()
}
