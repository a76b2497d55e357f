package handlers

import (
	"drtguard/services"

	"gorm.io/gorm"
)

type Handler struct {
	DB          *gorm.DB
	Config      *services.ConfigManager
	Registry    *services.VectorRegistry
	History     *services.BehavioralHistory
	Escalations *services.EscalationEngine
	Feedback    *services.FeedbackStore
	Persistence *services.PersistenceAdapter
	Engine      *services.DRTEngine
	Webhook     *services.WebhookService
}

func NewHandler(db *gorm.DB, config *services.ConfigManager, registry *services.VectorRegistry,
	history *services.BehavioralHistory, escalations *services.EscalationEngine,
	feedback *services.FeedbackStore, persistence *services.PersistenceAdapter,
	engine *services.DRTEngine, webhook *services.WebhookService) *Handler {
	return &Handler{
		DB:          db,
		Config:      config,
		Registry:    registry,
		History:     history,
		Escalations: escalations,
		Feedback:    feedback,
		Persistence: persistence,
		Engine:      engine,
		Webhook:     webhook,
	}
}
