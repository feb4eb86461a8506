package service

import (
	"runquest/internal/config"
	"runquest/internal/objectstore"
	"runquest/internal/observability"

	"gorm.io/gorm"
)

type ServiceContext struct {
	Config      *config.Config
	DB          *gorm.DB
	Metrics     *observability.Metrics
	Catalog     *CatalogService
	Progression *ProgressionService
	Proofs      *ProofService
	Stats       *StatsService
}

func NewServiceContext(cfg *config.Config, db *gorm.DB, store objectstore.Store, metrics *observability.Metrics) *ServiceContext {
	return &ServiceContext{
		Config:      cfg,
		DB:          db,
		Metrics:     metrics,
		Catalog:     NewCatalogService(db),
		Progression: NewProgressionService(db, NewLockedRand(cfg.Game.Seed), cfg.Game.DefaultTimeLimitSeconds, metrics),
		Proofs:      NewProofService(store, cfg.Storage.MaxUploadBytes, cfg.Storage.AllowedTypes, metrics),
		Stats:       NewStatsService(db),
	}
}
