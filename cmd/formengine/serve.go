package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-formengine/internal/devserver"
	"github.com/goliatone/go-formengine/pkg/model"
	"github.com/goliatone/go-formengine/pkg/schema"
	"github.com/goliatone/go-formengine/pkg/taxonomy"
)

func (a *app) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a local backend that accepts submissions and serves term searches",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			opts, err := a.serverOptions()
			if err != nil {
				return err
			}
			srv := &http.Server{
				Addr:              addr,
				Handler:           devserver.New(opts...),
				ReadHeaderTimeout: 10 * time.Second,
			}
			return serve(cmd.Context(), srv, a.logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}

func (a *app) serverOptions() ([]devserver.Option, error) {
	maxUpload, err := a.cfg.MaxUploadBytes()
	if err != nil {
		return nil, err
	}
	opts := []devserver.Option{
		devserver.WithLogger(a.logger),
		devserver.WithPageSize(a.cfg.Server.PageSize),
		devserver.WithMaxUpload(maxUpload),
	}

	if a.cfg.Server.Terms != "" {
		terms, err := loadTerms(a.cfg.Server.Terms)
		if err != nil {
			return nil, err
		}
		for name, list := range terms {
			opts = append(opts, devserver.WithTerms(name, list))
		}
	}

	if a.cfg.Schema != "" && !isURL(a.cfg.Schema) {
		raw, err := os.ReadFile(a.cfg.Schema)
		if err != nil {
			return nil, fmt.Errorf("serve: read schema: %w", err)
		}
		doc, err := schema.Parse(schema.SourceFromFile(a.cfg.Schema), raw)
		if err != nil {
			return nil, fmt.Errorf("serve: %w", err)
		}
		opts = append(opts, devserver.WithSchema(raw))
		for name, list := range schemaTerms(doc.Fields) {
			opts = append(opts, devserver.WithTerms(name, list))
		}
	}
	return opts, nil
}

// loadTerms reads a YAML mapping of taxonomy name to term trees.
func loadTerms(path string) (map[string][]taxonomy.Term, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("serve: read terms: %w", err)
	}
	var out map[string][]taxonomy.Term
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("serve: parse terms %q: %w", path, err)
	}
	return out, nil
}

// schemaTerms collects the inline terms of taxonomy fields, rows included.
func schemaTerms(fields []model.Field) map[string][]taxonomy.Term {
	out := make(map[string][]taxonomy.Term)
	for _, field := range fields {
		switch {
		case field.Type == model.FieldTypeTaxonomy && field.Props.Taxonomy != "" && len(field.Props.Terms) > 0:
			out[field.Props.Taxonomy] = append(out[field.Props.Taxonomy], field.Props.Terms...)
		case field.Type == model.FieldTypeRepeater:
			for name, list := range schemaTerms(field.Props.Fields) {
				out[name] = append(out[name], list...)
			}
		}
	}
	return out
}

func serve(ctx context.Context, srv *http.Server, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
