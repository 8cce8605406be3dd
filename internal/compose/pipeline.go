// Package compose assembles a prompt's combined content from its body,
// linked assets, embedded query results and output template instructions.
//
// Sections always appear in this order: prompt body, relationship sections
// in fetch order, primary query, secondary query, template instructions.
// A failing sub-step is logged and rendered inline (or skipped, for
// assets); only an unresolvable prompt fails the composition.
package compose

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/promptctx/internal/assets"
	"github.com/jackzampolin/promptctx/internal/metrics"
	"github.com/jackzampolin/promptctx/internal/prompts"
	"github.com/jackzampolin/promptctx/internal/query"
	"github.com/jackzampolin/promptctx/internal/store"
	"github.com/jackzampolin/promptctx/internal/templates"
)

// Defaults for Config.
const (
	DefaultStepTimeout        = 30 * time.Second
	DefaultMaxConcurrentReads = 4
)

// Query slots.
const (
	SlotPrimary   = "primary"
	SlotSecondary = "secondary"
)

// DefaultRelationshipType labels relationships without a type.
const DefaultRelationshipType = "reference"

// Options selects the optional composition steps.
type Options struct {
	IncludeRelationships bool
	IncludeQueries       bool
	IncludeTemplates     bool
}

// AllSteps enables every step.
func AllSteps() Options {
	return Options{IncludeRelationships: true, IncludeQueries: true, IncludeTemplates: true}
}

// Config holds the pipeline's collaborators and limits.
type Config struct {
	Resolver  *prompts.Resolver
	Prompts   *prompts.Store
	Templates *templates.Store
	Executor  *query.Executor
	Reader    *assets.Reader
	Metrics   *metrics.Recorder
	Logger    *slog.Logger

	// StepTimeout bounds each store call, file read and query.
	StepTimeout time.Duration
	// MaxConcurrentReads bounds parallel asset reads.
	MaxConcurrentReads int
}

// Pipeline composes prompts.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
}

// NewPipeline creates a pipeline. Prompts, Templates and Executor may be nil
// for local-only use; the steps that need them are then skipped.
func NewPipeline(cfg Config) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = DefaultStepTimeout
	}
	if cfg.MaxConcurrentReads <= 0 {
		cfg.MaxConcurrentReads = DefaultMaxConcurrentReads
	}
	if cfg.Reader == nil {
		cfg.Reader = assets.NewReader("", 0, cfg.Logger)
	}
	return &Pipeline{cfg: cfg, logger: cfg.Logger}
}

// QueryResult is the outcome of one embedded query.
type QueryResult struct {
	Slot    string         `json:"slot" yaml:"slot"`
	SQL     string         `json:"sql" yaml:"sql"`
	Params  map[string]any `json:"params" yaml:"params"`
	Success bool           `json:"success" yaml:"success"`
	Rows    []store.Record `json:"rows,omitempty" yaml:"rows,omitempty"`
	Error   string         `json:"error,omitempty" yaml:"error,omitempty"`
}

// Result is a composed prompt with its intermediate artifacts.
type Result struct {
	Content       string                     `json:"content" yaml:"content"`
	Prompt        *prompts.Prompt            `json:"prompt" yaml:"prompt"`
	Relationships []prompts.Relationship     `json:"relationships" yaml:"relationships"`
	Files         []assets.ReadResult        `json:"files" yaml:"files"`
	Queries       []QueryResult              `json:"queries" yaml:"queries"`
	Templates     []templates.OutputTemplate `json:"templates" yaml:"templates"`
	Instructions  string                     `json:"instructions,omitempty" yaml:"instructions,omitempty"`
}

// Compose resolves name and builds its combined content.
func (p *Pipeline) Compose(ctx context.Context, name string, opts Options) (*Result, error) {
	prompt, err := p.resolve(ctx, name)
	if err != nil {
		p.cfg.Metrics.RecordComposition(metrics.SourceNone, metrics.StatusError)
		return nil, err
	}
	source := metrics.SourceStore
	if prompt.IsLocal() {
		source = metrics.SourceLocal
	}

	res := &Result{Prompt: prompt}
	var b strings.Builder
	b.WriteString(prompt.Content)

	if !prompt.IsLocal() && (opts.IncludeRelationships || opts.IncludeQueries) {
		res.Relationships = p.loadRelationships(ctx, prompt)
	}

	if opts.IncludeRelationships && len(res.Relationships) > 0 {
		res.Files = p.readAssets(ctx, res.Relationships)
		for i, f := range res.Files {
			rel := res.Relationships[i]
			if !f.Success {
				p.logger.Warn("skipping unreadable asset", "prompt", prompt.Name, "path", rel.AssetPath, "error", f.Error)
				p.cfg.Metrics.RecordDegraded(metrics.KindAsset)
				continue
			}
			writeAssetSection(&b, rel, f)
		}
	}

	if opts.IncludeQueries {
		for _, qr := range p.runQueries(ctx, prompt, res.Relationships) {
			if !qr.Success {
				p.cfg.Metrics.RecordDegraded(metrics.KindQuery)
			}
			writeQuerySection(&b, qr)
			res.Queries = append(res.Queries, qr)
		}
	}

	if opts.IncludeTemplates && !prompt.IsLocal() && p.cfg.Templates != nil {
		res.Templates = p.loadTemplates(ctx, prompt)
		if len(res.Templates) > 0 {
			res.Instructions = templates.GenerateInstructions(templates.MergeOrder(res.Templates))
			b.WriteString("\n\n")
			b.WriteString(res.Instructions)
		}
	}

	res.Content = b.String()
	p.cfg.Metrics.RecordComposition(source, metrics.StatusSuccess)
	p.logger.Debug("prompt composed",
		"prompt", prompt.Name,
		"source", source,
		"relationships", len(res.Relationships),
		"queries", len(res.Queries),
		"templates", len(res.Templates),
		"bytes", len(res.Content))
	return res, nil
}

func (p *Pipeline) step(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.cfg.StepTimeout)
}

func (p *Pipeline) resolve(ctx context.Context, name string) (*prompts.Prompt, error) {
	stepCtx, cancel := p.step(ctx)
	defer cancel()
	resolver := p.cfg.Resolver
	if resolver == nil {
		resolver = prompts.NewResolver(p.cfg.Prompts, nil, p.logger)
	}
	return resolver.Resolve(stepCtx, name)
}

func (p *Pipeline) loadRelationships(ctx context.Context, prompt *prompts.Prompt) []prompts.Relationship {
	if p.cfg.Prompts == nil {
		return nil
	}
	stepCtx, cancel := p.step(ctx)
	defer cancel()
	rels, err := p.cfg.Prompts.Relationships(stepCtx, prompt.ID)
	if err != nil {
		p.logger.Warn("failed to fetch relationships", "prompt", prompt.Name, "error", err)
		return nil
	}
	return rels
}

// readAssets reads every relationship's asset. Results are indexed like
// rels regardless of completion order.
func (p *Pipeline) readAssets(ctx context.Context, rels []prompts.Relationship) []assets.ReadResult {
	files := make([]assets.ReadResult, len(rels))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxConcurrentReads)
	for i, rel := range rels {
		i, rel := i, rel
		g.Go(func() error {
			stepCtx, cancel := p.step(gctx)
			defer cancel()
			files[i] = p.cfg.Reader.Read(stepCtx, rel.AssetPath)
			return nil
		})
	}
	_ = g.Wait()
	return files
}

func (p *Pipeline) runQueries(ctx context.Context, prompt *prompts.Prompt, rels []prompts.Relationship) []QueryResult {
	primary, secondary := prompt.Metadata.Queries()
	if primary == "" && secondary == "" {
		return nil
	}

	base := map[string]any{"prompt_id": prompt.ID, "prompt_name": prompt.Name}
	var out []QueryResult
	if primary != "" {
		out = append(out, p.runQuery(ctx, SlotPrimary, primary, base))
	}
	if secondary != "" {
		params := make(map[string]any, len(base)+1)
		for k, v := range base {
			params[k] = v
		}
		params["script_id"] = query.SentinelID
		if len(rels) > 0 && rels[0].AssetID != nil {
			params["script_id"] = *rels[0].AssetID
		}
		out = append(out, p.runQuery(ctx, SlotSecondary, secondary, params))
	}
	return out
}

func (p *Pipeline) runQuery(ctx context.Context, slot, sql string, params map[string]any) QueryResult {
	qr := QueryResult{Slot: slot, SQL: sql, Params: params}
	if p.cfg.Executor == nil {
		qr.Error = query.NoMethodMessage
		return qr
	}
	stepCtx, cancel := p.step(ctx)
	defer cancel()
	rows, err := p.cfg.Executor.Execute(stepCtx, sql, params)
	if err != nil {
		p.logger.Warn("embedded query failed", "slot", slot, "error", err)
		qr.Error = err.Error()
		return qr
	}
	qr.Success = true
	qr.Rows = rows
	return qr
}

func (p *Pipeline) loadTemplates(ctx context.Context, prompt *prompts.Prompt) []templates.OutputTemplate {
	stepCtx, cancel := p.step(ctx)
	defer cancel()
	ts, err := p.cfg.Templates.ForPrompt(stepCtx, prompt.ID)
	if err != nil {
		p.logger.Warn("failed to load output templates", "prompt", prompt.Name, "error", err)
		p.cfg.Metrics.RecordDegraded(metrics.KindTemplate)
		return nil
	}
	return ts
}

func writeAssetSection(b *strings.Builder, rel prompts.Relationship, f assets.ReadResult) {
	relType := rel.RelationshipType
	if relType == "" {
		relType = DefaultRelationshipType
	}
	fmt.Fprintf(b, "\n\n### %s - %s\n", relType, filepath.Base(rel.AssetPath))
	if rel.Context != "" {
		fmt.Fprintf(b, "Context: %s\n", rel.Context)
	}
	writeFenced(b, "", f.Content)
}

func writeQuerySection(b *strings.Builder, qr QueryResult) {
	label := "Database Query"
	if qr.Slot == SlotSecondary {
		label = "Database Query 2"
	}
	if !qr.Success {
		fmt.Fprintf(b, "\n\n### %s Error\n", label)
		writeFenced(b, "", qr.Error)
		return
	}
	fmt.Fprintf(b, "\n\n### %s Results\n", label)
	writeFenced(b, "json", RowsJSON(qr.Rows))
}

// writeFenced writes content in a code fence longer than any backtick run
// it contains.
func writeFenced(b *strings.Builder, lang, content string) {
	fence := "```"
	for strings.Contains(content, fence) {
		fence += "`"
	}
	fmt.Fprintf(b, "\n%s%s\n%s\n%s", fence, lang, strings.TrimRight(content, "\n"), fence)
}

// RowsJSON renders query rows as indented JSON. Byte slices are rendered
// as text.
func RowsJSON(rows []store.Record) string {
	plain := make([]map[string]any, len(rows))
	for i, r := range rows {
		m := make(map[string]any, len(r))
		for k, v := range r {
			if bs, ok := v.([]byte); ok {
				v = string(bs)
			}
			m[k] = v
		}
		plain[i] = m
	}
	data, err := json.MarshalIndent(plain, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", rows)
	}
	return string(data)
}
