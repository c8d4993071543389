// Package bootstrap builds the store and reasoning engine selected by configuration.
package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhouzirui/timemachine/backend/internal/config"
	"github.com/zhouzirui/timemachine/backend/internal/model/scenario"
	"github.com/zhouzirui/timemachine/backend/internal/service/reasoning"
	"github.com/zhouzirui/timemachine/backend/internal/storage/mongo"
)

// CloseFunc releases a backend's resources.
type CloseFunc func(context.Context) error

// NewStore returns the configured session store and its close func.
func NewStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (scenario.Store, CloseFunc, error) {
	switch cfg.Backend {
	case config.StoreMongo:
		store, err := mongo.Connect(ctx, mongo.Config{
			URI:        cfg.MongoURI,
			Database:   cfg.Database,
			Collection: cfg.Collection,
			Timeout:    cfg.Timeout,
		}, logger.Named("mongo"))
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case config.StoreMemory, "":
		logger.Info("using in-memory session store; sessions are lost on restart")
		return scenario.NewMemoryStore(), func(context.Context) error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// NewReasoner returns the configured reasoning engine.
func NewReasoner(ctx context.Context, cfg *config.Config, logger *zap.Logger) (reasoning.Client, error) {
	switch cfg.Reasoner.Mode {
	case config.ReasonerHTTP, "":
		logger.Info("using external reasoning engine", zap.String("url", cfg.Reasoner.EngineURL))
		return reasoning.NewHTTPClient(cfg.Reasoner.EngineURL, cfg.Reasoner.Timeout, logger.Named("reasoning")), nil
	case config.ReasonerLLM:
		chatModel, err := cfg.AI.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("create chat model: %w", err)
		}
		logger.Info("using in-process LLM engine", zap.String("model", cfg.AI.Model))
		return reasoning.NewLLMEngine(ctx, chatModel, logger.Named("reasoning"))
	case config.ReasonerHeuristic:
		logger.Info("using offline heuristic engine")
		return reasoning.NewHeuristicEngine(), nil
	default:
		return nil, fmt.Errorf("unknown reasoner %q", cfg.Reasoner.Mode)
	}
}
