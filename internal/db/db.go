package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/prepcoach/backend/internal/logger"
	"github.com/prepcoach/backend/internal/types"
	"github.com/prepcoach/backend/internal/utils"
)

type Service struct {
	db  *gorm.DB
	log *logger.Logger
}

// New connects to the configured database. DATABASE_DRIVER selects
// postgres (default) or sqlite; sqlite is intended for dev and tests.
func New(log *logger.Logger) (*Service, error) {
	serviceLog := log.With("service", "DBService")

	driver := utils.GetEnv("DATABASE_DRIVER", "postgres", log)

	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dsn := utils.GetEnv("SQLITE_PATH", "coach.db", log)
		dialector = sqlite.Open(dsn)
	case "postgres":
		host := utils.GetEnv("POSTGRES_HOST", "localhost", log)
		port := utils.GetEnv("POSTGRES_PORT", "5432", log)
		user := utils.GetEnv("POSTGRES_USER", "postgres", log)
		password := utils.GetEnv("POSTGRES_PASSWORD", "", log)
		name := utils.GetEnv("POSTGRES_NAME", "prepcoach", log)
		dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, name)
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unknown DATABASE_DRIVER: %q", driver)
	}

	log.Info("Connecting to database...", "driver", driver)
	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	return &Service{db: db, log: serviceLog}, nil
}

func (s *Service) DB() *gorm.DB { return s.db }

func (s *Service) AutoMigrateAll() error {
	s.log.Info("Auto migrating tables...")
	return AutoMigrateAll(s.db)
}

// AutoMigrateAll migrates every entity. Shared with the test harness.
func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&types.User{},
		&types.Document{},
		&types.Skill{},
		&types.SkillEvidence{},
		&types.Gap{},
		&types.StudyPlan{},
		&types.Week{},
		&types.Day{},
		&types.Task{},
		&types.PracticeItem{},
		&types.Rubric{},
		&types.Attempt{},
		&types.Evaluation{},
		&types.Mastery{},
		&types.CalendarEvent{},
	)
}
