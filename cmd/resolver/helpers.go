package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"lineitem_engine/pkg/config"
	"lineitem_engine/pkg/core/ingest"
	"lineitem_engine/pkg/core/llm"
	"lineitem_engine/pkg/core/pipeline"
	"lineitem_engine/pkg/core/report"
	"lineitem_engine/pkg/core/rules"
	"lineitem_engine/pkg/core/store"
	"lineitem_engine/pkg/models"
)

// Output formats for commands that render reports.
const (
	formatJSON     = "json"
	formatMarkdown = "markdown"
	formatHTML     = "html"
	formatText     = "text"
)

func loadTable(c *config.Config) (*rules.Table, error) {
	if c.Rules.Path == "" {
		return rules.Default()
	}
	return rules.LoadFile(c.Rules.Path)
}

// newEngine builds the pipeline from config. The returned store is nil
// unless save is set; callers close it.
func newEngine(ctx context.Context, c *config.Config, save bool) (*pipeline.Engine, *store.ReportStore, error) {
	table, err := loadTable(c)
	if err != nil {
		return nil, nil, eris.Wrap(err, "load rules")
	}
	opts := pipeline.Options{
		Table:       table,
		Tolerances:  c.Reconcile,
		AssumedRate: c.Debt.AssumedRate,
	}
	if c.LLM.Enabled {
		opts.Matcher = llm.NewMatcher(llm.NewGeminiProvider(c.LLM.APIKey, c.LLM.Model))
	}

	var st *store.ReportStore
	if save {
		st, err = store.Open(ctx, c.Store.DatabaseURL, c.Store.Dir)
		if err != nil {
			return nil, nil, eris.Wrap(err, "open store")
		}
		opts.Repository = st
	}

	e, err := pipeline.NewEngine(opts)
	if err != nil {
		if st != nil {
			st.Close()
		}
		return nil, nil, err
	}
	return e, st, nil
}

func readBundle(path string) (*models.Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	b, err := ingest.LoadBundle(f)
	if err != nil {
		return nil, eris.Wrapf(err, "load %s", path)
	}
	return b, nil
}

// companyName defaults to the bundle's file name without extension.
func companyName(path, override string) string {
	if override != "" {
		return override
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeReport(w io.Writer, r *pipeline.Report, format string) error {
	switch format {
	case formatJSON:
		return writeJSON(w, r)
	case formatMarkdown:
		_, err := io.WriteString(w, report.Markdown(r))
		return err
	case formatHTML:
		page, err := report.HTMLPage("Line Item Resolution: "+r.Company, report.Markdown(r))
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, page)
		return err
	}
	return eris.Errorf("unknown format %q (want json, markdown or html)", format)
}
