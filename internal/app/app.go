// Package app assembles the store, repositories, sync engine and job
// queue from configuration.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/investblog/cloudflare-images-sync/internal/cloudflare"
	"github.com/investblog/cloudflare-images-sync/internal/config"
	"github.com/investblog/cloudflare-images-sync/internal/imagesync"
	"github.com/investblog/cloudflare-images-sync/internal/jobs"
	"github.com/investblog/cloudflare-images-sync/internal/logging"
	"github.com/investblog/cloudflare-images-sync/internal/models"
	"github.com/investblog/cloudflare-images-sync/internal/repos"
	"github.com/investblog/cloudflare-images-sync/internal/state"
)

// Options customizes Open. The zero value is the production setup.
type Options struct {
	// NewClient builds the images client; nil uses Cloudflare with
	// Config.HTTPTimeout as the overall request cap.
	NewClient imagesync.ClientFactory

	// Console receives log output; nil means stderr.
	Console io.Writer
}

// App holds the wired components.
type App struct {
	Config   *config.Config
	State    *state.State
	Settings *repos.SettingsRepo
	Mappings *repos.MappingsRepo
	Presets  *repos.PresetsRepo
	Logs     *repos.LogsRepo
	Engine   *imagesync.Engine
	Hooks    *imagesync.Hooks
	Queue    *jobs.Queue
	Bulk     *jobs.Bulk
	Logger   *slog.Logger
}

// Open opens the state database and wires everything on top of it.
// Credential overrides from the environment are written into settings.
func Open(cfg *config.Config, opts Options) (*App, error) {
	path := cfg.StatePath
	if path == "" {
		p, err := state.DefaultPath()
		if err != nil {
			return nil, err
		}

		path = p
	}

	st, err := state.LoadAt(path)
	if err != nil {
		return nil, fmt.Errorf("loading state: %w", err)
	}

	cipher, err := repos.NewTokenCipher(cfg.SecretKey)
	if err != nil {
		st.Close()
		return nil, err
	}

	a := &App{
		Config:   cfg,
		State:    st,
		Settings: repos.NewSettingsRepo(st, cipher),
		Mappings: repos.NewMappingsRepo(st),
		Presets:  repos.NewPresetsRepo(st),
	}
	a.Logs = repos.NewLogsRepo(st, a.Settings)

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	a.Logger = slog.New(logging.Tee{
		logging.NewHandler(cfg.Environment, console),
		logging.NewRingHandler(a.Logs, a.debugEnabled),
	})

	newClient := opts.NewClient
	if newClient == nil {
		httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
		newClient = func(accountID, token string) imagesync.ImagesAPI {
			return cloudflare.NewClient(accountID, token, httpClient)
		}
	}

	resolver := imagesync.NewResolver(st, st, st, a.Logger)
	a.Engine = imagesync.NewEngine(imagesync.EngineConfig{
		Meta:      st,
		Resolver:  resolver,
		Settings:  a.Settings,
		Presets:   a.Presets,
		NewClient: newClient,
	}, a.Logger)

	a.Queue = jobs.NewQueue(st)
	a.Hooks = imagesync.NewHooks(a.Mappings, a.Settings, a.Engine, a.Queue, a.Logger)
	a.Bulk = jobs.NewBulk(a.Mappings, st, a.Engine, a.Queue, a.Logger)

	// Meta writes re-raise the post's save event inside the same unit of
	// work; the held guard makes Hooks drop it.
	a.Engine.OnPostWrite(func(ctx context.Context, g *imagesync.Guard, postID int64) {
		p, err := st.GetPost(postID)
		if err != nil || p == nil {
			return
		}

		a.Hooks.Handle(ctx, g, imagesync.SaveEvent{
			PostID:   p.ID,
			PostType: p.Type,
			Status:   p.Status,
			Trigger:  models.TriggerSavePost,
			Revision: p.IsRevision,
		})
	})

	if err := a.applyOverrides(); err != nil {
		st.Close()
		return nil, err
	}

	return a, nil
}

// Close closes the state database.
func (a *App) Close() error {
	return a.State.Close()
}

// NewWorker returns a queue worker with the sync handlers registered.
func (a *App) NewWorker() *jobs.Worker {
	w := jobs.NewWorker(a.State, a.Config.WorkerPoll, a.Logger)
	jobs.Register(w, a.Engine, a.Mappings, a.Bulk)

	return w
}

func (a *App) debugEnabled() bool {
	s, err := a.Settings.Get()
	return err == nil && s.Debug
}

func (a *App) applyOverrides() error {
	if !a.Config.HasCredentialOverrides() {
		return nil
	}

	var patch repos.SettingsPatch

	if a.Config.AccountID != "" {
		patch.AccountID = &a.Config.AccountID
	}

	if a.Config.AccountHash != "" {
		patch.AccountHash = &a.Config.AccountHash
	}

	if a.Config.APIToken != "" {
		patch.APIToken = &a.Config.APIToken
	}

	if _, err := a.Settings.Update(patch); err != nil {
		return fmt.Errorf("applying credential overrides: %w", err)
	}

	return nil
}
