package cmd

import (
	"fmt"
	"os"
	"time"

	"gig-copilot/internal/attachment"
	"gig-copilot/internal/config"
	"gig-copilot/internal/gemini"
	"gig-copilot/internal/knowledge"
	"gig-copilot/internal/logger"
	"gig-copilot/internal/prompt"
)

// app is the set of components shared by every command.
type app struct {
	cfg       *config.Config
	validator *attachment.Validator
	client    *gemini.Client
	store     *knowledge.Store
	importer  *knowledge.Importer
	templates *prompt.Library
}

func newApp() (*app, error) {
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	logger.SetDebug(cfg.Verbose)
	if cfg.Verbose {
		logger.SetConsole(os.Stderr)
	}
	if err := logger.Init(cfg.LogPath); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: logging to file disabled: %v\n", err)
	}

	validator := &attachment.Validator{
		MinIDLength: cfg.MinIDLength,
		Validity:    cfg.FileValidity,
		Now:         time.Now,
	}

	client := gemini.NewClient(gemini.Options{
		BaseURL:           cfg.BaseURL,
		UploadURL:         cfg.UploadURL,
		APIKey:            cfg.APIKey,
		Timeout:           cfg.RequestTimeout,
		RequestsPerMinute: cfg.RequestsPerMinute,
		Log:               logger.WithComponent("gemini"),
	})

	store, err := knowledge.Open(cfg.KnowledgePath, validator, logger.WithComponent("knowledge"))
	if err != nil {
		return nil, err
	}

	templates, err := prompt.Load(cfg.TemplatesPath)
	if err != nil {
		store.Close()
		return nil, err
	}
	templates.WithKnowledge(store, client.BaseURL())

	return &app{
		cfg:       cfg,
		validator: validator,
		client:    client,
		store:     store,
		importer: &knowledge.Importer{
			Store:    store,
			Uploader: client,
			BaseURL:  client.BaseURL(),
			MaxSize:  cfg.MaxUploadSize,
		},
		templates: templates,
	}, nil
}

func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
	logger.Close()
}
