package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/felixgeelhaar/syno/internal/chat"
	"github.com/felixgeelhaar/syno/internal/config"
	"github.com/felixgeelhaar/syno/internal/conversation"
	"github.com/felixgeelhaar/syno/internal/corpus"
	"github.com/felixgeelhaar/syno/internal/credential"
	"github.com/felixgeelhaar/syno/internal/generate"
	"github.com/felixgeelhaar/syno/internal/index"
	"github.com/felixgeelhaar/syno/internal/observe"
	"github.com/felixgeelhaar/syno/internal/provider"
	"github.com/felixgeelhaar/syno/internal/rag"
	"github.com/felixgeelhaar/syno/internal/store"
)

// App is the wired process: store, model, corpus index and chat service.
type App struct {
	Config    *config.Config
	Observer  *observe.Observer
	Store     store.Storage
	Vault     *credential.Vault
	Index     *index.Index
	Retriever *rag.Retriever
	Generator *generate.Generator
	Sessions  *conversation.Manager
	Events    *chat.EventBus
	Chat      *chat.Service
}

func newObserver(cfg *config.Config, logOut io.Writer) *observe.Observer {
	return observe.NewFormat(logOut, cfg.Log.Format, cfg.Log.Verbose)
}

// openVault opens the store and the encrypted config view over it.
func openVault(ctx context.Context, cfg *config.Config) (store.Storage, *credential.Vault, error) {
	s, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init store: %w", err)
	}
	mgr, err := credential.NewManager()
	if err != nil {
		s.Close()
		return nil, nil, err
	}
	return s, credential.NewVault(s, mgr), nil
}

// buildApp wires every component. A corpus that fails to load or index
// aborts startup; a corpus pattern matching nothing starts with an empty
// index and a warning.
func buildApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (*App, error) {
	obs := newObserver(cfg, logOut)

	s, vault, err := openVault(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app := &App{Config: cfg, Observer: obs, Store: s, Vault: vault}

	chatModel, err := newProvider(ctx, vault, cfg.Provider)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize provider: %w", err)
	}
	embedder := chatModel
	if cfg.Embedder.Type != "" {
		if embedder, err = newProvider(ctx, vault, cfg.EmbedderConfig()); err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
	}

	if app.Index, err = loadIndex(ctx, cfg, obs); err != nil {
		app.Close()
		return nil, err
	}

	app.Retriever = rag.NewRetriever(embedder, app.Index, obs)
	app.Generator = generate.New(chatModel, app.Retriever, obs,
		generate.WithMaxTokens(cfg.Generation.MaxTokens),
		generate.WithTopK(cfg.Generation.TopK),
		generate.WithRolePrompt(cfg.Generation.RolePrompt),
		generate.WithPolicy(generate.Policy{
			MaxAttempts: cfg.Generation.MaxAttempts,
			Backoff:     cfg.Generation.Backoff,
		}),
	)
	app.Sessions = conversation.NewManager()
	app.Events = chat.NewEventBus()
	app.Events.SubscribeAll(func(e chat.Event) {
		obs.Log().Debug().Str("event", string(e.Type)).Str("chat", e.ChatID).Msg("chat event")
	})
	app.Chat = chat.NewService(s, app.Sessions, app.Generator, obs, app.Events)

	obs.Log().Info().
		Str("provider", chatModel.Name()).
		Int("records", app.Index.Len()).
		Int("dimension", app.Index.Dimension()).
		Msg("syno ready")
	return app, nil
}

// newProvider fills a missing API key from the encrypted config table
// ("<provider>.api_key") before building the provider.
func newProvider(ctx context.Context, vault *credential.Vault, pc config.ProviderConfig) (provider.Provider, error) {
	if pc.APIKey == "" && vault != nil {
		key, err := vault.Get(ctx, pc.Type+".api_key")
		if err != nil {
			return nil, err
		}
		pc.APIKey = key
	}
	return provider.New(pc.Settings())
}

func loadIndex(ctx context.Context, cfg *config.Config, obs *observe.Observer) (*index.Index, error) {
	loader := &corpus.Loader{Obs: obs}
	if corpus.NeedsS3(cfg.Corpus.Sources) {
		loader.S3 = corpus.Connect(cfg.Corpus.S3)
	}

	bundle, err := loader.Load(ctx, cfg.Corpus.Sources...)
	if errors.Is(err, corpus.ErrNoMatches) {
		obs.Log().Warn().Err(err).Msg("no corpus found, answers will carry no evidence")
		return index.Build(nil, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load corpus: %w", err)
	}

	idx, err := index.FromBundle(bundle)
	if err != nil {
		return nil, fmt.Errorf("failed to index corpus: %w", err)
	}
	return idx, nil
}

func (a *App) Close() error {
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}
