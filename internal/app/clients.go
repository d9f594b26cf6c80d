package app

import (
	"github.com/docvault/docvault-backend/internal/clients/openai"
	redisclient "github.com/docvault/docvault-backend/internal/clients/redis"
	"github.com/docvault/docvault-backend/internal/platform/logger"
)

type Clients struct {
	OpenAI openai.Client
	Bus    redisclient.EventBus
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	oa, err := openai.NewClient(log)
	if err != nil {
		return Clients{}, err
	}

	var bus redisclient.EventBus
	if cfg.RedisAddr != "" {
		bus, err = redisclient.NewEventBus(log)
		if err != nil {
			// The bus is optional; pipeline events degrade to no-op.
			log.Warn("Redis event bus unavailable, notifications disabled", "error", err)
			bus = nil
		}
	}

	return Clients{OpenAI: oa, Bus: bus}, nil
}
