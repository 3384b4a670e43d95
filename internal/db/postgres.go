package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/reelforge/reelforge-backend/internal/domain"
	"github.com/reelforge/reelforge-backend/internal/pkg/logger"
	"github.com/reelforge/reelforge-backend/internal/utils"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
	postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
	postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
	postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
	postgresName := utils.GetEnv("POSTGRES_NAME", "reelforge", log)

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

	serviceLog.Info("Connecting to Postgres...")
	gormDB, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	if err := gormDB.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		return nil, fmt.Errorf("failed to enable uuid-ossp extension: %w", err)
	}

	return &PostgresService{db: gormDB, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	if err := s.db.AutoMigrate(
		&domain.Video{},
		&domain.Checkpoint{},
		&domain.Artifact{},
		&domain.JobRun{},
	); err != nil {
		return fmt.Errorf("auto migration failed: %w", err)
	}

	// Checkpoints and artifacts cascade away with their video; videos
	// themselves are never deleted by the core.
	stmts := []string{
		`ALTER TABLE "checkpoint" DROP CONSTRAINT IF EXISTS "fk_checkpoint_video_id";`,
		`ALTER TABLE "checkpoint"
		   ADD CONSTRAINT "fk_checkpoint_video_id"
		   FOREIGN KEY ("video_id") REFERENCES "video"("id")
		   ON DELETE CASCADE;`,
		`ALTER TABLE "artifact" DROP CONSTRAINT IF EXISTS "fk_artifact_checkpoint_id";`,
		`ALTER TABLE "artifact"
		   ADD CONSTRAINT "fk_artifact_checkpoint_id"
		   FOREIGN KEY ("checkpoint_id") REFERENCES "checkpoint"("id")
		   ON DELETE CASCADE;`,
	}
	for _, stmt := range stmts {
		if err := s.db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to configure constraints: %w", err)
		}
	}
	return nil
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}
