package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/procdoc/internal/catalog"
	"github.com/sells-group/procdoc/internal/chat"
	"github.com/sells-group/procdoc/internal/extract"
	"github.com/sells-group/procdoc/internal/mapper"
	"github.com/sells-group/procdoc/internal/pipeline"
	"github.com/sells-group/procdoc/internal/store"
	anthropicpkg "github.com/sells-group/procdoc/pkg/anthropic"
)

// appEnv holds the initialized store and services shared by the serve,
// process and rebuild-catalog commands.
type appEnv struct {
	Store     store.Store
	Processor *pipeline.Processor
	Chat      *chat.Service
	Catalog   *catalog.Service
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "", "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// initEnv sets up the store and builds the pipeline, chat and catalog
// services. Callers should defer env.Close().
func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	// Without an API key the mapper never runs (the process endpoint
	// rejects requests) and chat falls back to search-only mode.
	var client anthropicpkg.Client
	if cfg.Anthropic.Key != "" {
		client = anthropicpkg.NewClient(cfg.Anthropic.Key)
	}

	proc := pipeline.New(st, extract.NewRegistry(), mapper.New(client, cfg.Anthropic.Model), pipeline.Options{
		ModelID:      cfg.Anthropic.Model,
		MapTimeout:   time.Duration(cfg.Anthropic.TimeoutSecs) * time.Second,
		ChunkSize:    cfg.Chunking.Size,
		ChunkOverlap: cfg.Chunking.Overlap,
	})

	chatSvc := chat.New(st, client, chat.Options{
		Model:         cfg.Anthropic.Model,
		LineItemLimit: cfg.Chat.LineItemLimit,
		ChunkLimit:    cfg.Chat.ChunkLimit,
	})

	return &appEnv{
		Store:     st,
		Processor: proc,
		Chat:      chatSvc,
		Catalog:   catalog.New(st),
	}, nil
}
