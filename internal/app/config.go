package app

import (
	"time"

	"github.com/reelforge/reelforge-backend/internal/pkg/logger"
	"github.com/reelforge/reelforge-backend/internal/utils"
)

type Config struct {
	Port         string
	StitchBudget time.Duration
}

func LoadConfig(log *logger.Logger) Config {
	port := utils.GetEnv("PORT", "8080", log)
	stitchBudgetSeconds := utils.GetEnvAsInt("STITCH_BUDGET_SECONDS", 360, log)
	return Config{
		Port:         port,
		StitchBudget: time.Duration(stitchBudgetSeconds) * time.Second,
	}
}
