package main

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/petasbytes/mcp-agent/internal/config"
	"github.com/petasbytes/mcp-agent/internal/fsops"
	"github.com/petasbytes/mcp-agent/internal/index"
	"github.com/petasbytes/mcp-agent/internal/objstore"
	"github.com/petasbytes/mcp-agent/internal/provider"
	"github.com/petasbytes/mcp-agent/internal/reasoning"
	"github.com/petasbytes/mcp-agent/internal/sales"
	"github.com/petasbytes/mcp-agent/tools"
)

// backends holds the open resources behind the tool catalog.
type backends struct {
	deps    tools.Deps
	closers []func() error
}

// Close releases every opened backend.
func (b *backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	return errors.Join(errs...)
}

// openBackends wires whatever cfg makes available. A backend that cannot be
// opened is logged and left nil; its tools then report that they are not
// configured instead of taking the server down.
func openBackends(ctx context.Context, cfg *config.Config, logger *zap.Logger) *backends {
	b := &backends{deps: tools.Deps{Prefix: cfg.Tools.S3.Prefix}}

	db, err := sales.Open(ctx, cfg.Tools.DatabasePath)
	if err != nil {
		logger.Warn("sales database unavailable", zap.String("path", cfg.Tools.DatabasePath), zap.Error(err))
	} else {
		b.deps.Sales = db
		b.closers = append(b.closers, db.Close)
	}

	var objects objstore.Store
	if cfg.Tools.S3.Bucket != "" {
		s3store, err := objstore.NewS3(ctx, cfg.Tools.S3)
		if err != nil {
			logger.Warn("object store unavailable", zap.String("bucket", cfg.Tools.S3.Bucket), zap.Error(err))
		} else {
			objects = s3store
			b.deps.Objects = s3store
		}
	}

	artifacts, err := fsops.New(cfg.Tools.ArtifactsDir)
	if err != nil {
		logger.Warn("artifacts store unavailable", zap.String("dir", cfg.Tools.ArtifactsDir), zap.Error(err))
		return b
	}
	if cfg.Anthropic.APIKey == "" {
		logger.Info("no Anthropic API key; indexing and reasoning tools disabled")
		return b
	}

	completer := provider.NewCompleter(provider.NewClient(cfg.Anthropic), cfg.Model, cfg.MaxTokens)
	ix := index.New(objects, completer, artifacts, index.Options{
		Prefix:      cfg.Tools.S3.Prefix,
		IndexFile:   cfg.Tools.IndexFile,
		ChunkTokens: cfg.Tools.ChunkTokens,
		Concurrency: cfg.Tools.IndexConcurrency,
	}, logger.Named("index"))
	if objects != nil {
		b.deps.Indexer = ix
	}
	b.deps.Reasoner = reasoning.New(completer, ix, artifacts, reasoning.Options{
		GraphFile:   cfg.Tools.GraphFile,
		Concurrency: cfg.Tools.IndexConcurrency,
	}, logger.Named("reasoning"))
	return b
}

// buildCatalog opens the backends and registers the tools on them.
func buildCatalog(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*tools.Registry, *backends, error) {
	b := openBackends(ctx, cfg, logger)
	reg, err := tools.NewCatalog(b.deps)
	if err != nil {
		_ = b.Close()
		return nil, nil, err
	}
	return reg, b, nil
}
