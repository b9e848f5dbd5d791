package cmd

import (
	"fmt"
	"time"

	"github.com/JakeFAU/harvester/internal/app"
	clocksystem "github.com/JakeFAU/harvester/internal/clock/system"
	"github.com/JakeFAU/harvester/internal/config"
	"github.com/JakeFAU/harvester/internal/convert"
	"github.com/JakeFAU/harvester/internal/document"
	"github.com/JakeFAU/harvester/internal/extract"
	"github.com/JakeFAU/harvester/internal/fetch"
	"github.com/JakeFAU/harvester/internal/harvest"
	"github.com/JakeFAU/harvester/internal/hash/sha256"
	iduuid "github.com/JakeFAU/harvester/internal/id/uuid"
	"github.com/JakeFAU/harvester/internal/logging"
	"github.com/JakeFAU/harvester/internal/pipeline"
	"github.com/JakeFAU/harvester/internal/runtime"
	"github.com/JakeFAU/harvester/internal/session"
	"github.com/JakeFAU/harvester/internal/token"
)

// buildRuntime assembles the session runtime from configuration and the
// shared application services.
func buildRuntime(cfg config.Config, a *app.App) (*runtime.Runtime, error) {
	writer, err := document.NewAtomicWriter(cfg.Output.Dir)
	if err != nil {
		return nil, fmt.Errorf("init output directory: %w", err)
	}

	normalizer := harvest.DefaultNormalizer{}
	fetcher := fetch.New(fetch.Config{
		UserAgent:      cfg.Fetch.UserAgent,
		ConnectTimeout: time.Duration(cfg.Fetch.ConnectTimeoutSeconds) * time.Second,
		RequestTimeout: cfg.RequestTimeout(),
		MaxRedirects:   cfg.Fetch.MaxRedirects,
		MaxBodyBytes:   cfg.Fetch.MaxBodyBytes,
	})
	counter := token.NewWhitespace()

	return runtime.New(runtime.Config{
		QueueCapacity: cfg.Intake.QueueCapacity,
		Pipeline: pipeline.Config{
			MaxInFlight:     cfg.Concurrency(),
			ExtractTimeout:  time.Duration(cfg.Pipeline.ExtractTimeoutSeconds) * time.Second,
			ConvertTimeout:  time.Duration(cfg.Pipeline.ConvertTimeoutSeconds) * time.Second,
			TokenizeTimeout: time.Duration(cfg.Pipeline.TokenizeTimeoutSeconds) * time.Second,
			WriteTimeout:    time.Duration(cfg.Pipeline.WriteTimeoutSeconds) * time.Second,
		},
		TickEvery:    cfg.RenderTick(),
		PublishTopic: cfg.Publisher.Topic,
		Session: session.Config{
			AllowRestart:     cfg.Session.AllowRestart,
			MaxURLsPerSubmit: cfg.Intake.MaxURLsPerSubmit,
			ExportFilename:   cfg.Output.ExportFilename,
			ManifestFilename: cfg.Output.ManifestFilename,
			TokenScheme:      counter.Scheme(),
			Normalizer:       normalizer,
		},
	}, runtime.Deps{
		Fetcher:    fetcher,
		Extractor:  extract.New(),
		Converter:  convert.New(cfg.Convert.MaxLinks, normalizer),
		Tokens:     counter,
		Writer:     writer,
		Hasher:     sha256.New(),
		Clock:      clocksystem.New(),
		Normalizer: normalizer,
		Progress:   a.Hub(),
		Archive:    a.Archive(),
		Publisher:  a.Publisher(),
		Snapshots:  a.Snapshots(),
		IDs:        iduuid.New(),
		Logger:     logging.Named(a.Logger(), "runtime"),
	}), nil
}
