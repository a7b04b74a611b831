// Package extraction runs the tiered drawing pipeline: native text harvest,
// raster recognition for pages with too little native text, clustering,
// prefiltering and structuring into registry features.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"balloon/internal/harvest"
	"balloon/internal/logger"
	"balloon/internal/ocr"
	"balloon/internal/registry"
	"balloon/internal/structure"
	"balloon/pkg/models"
)

// RasterFallbackThreshold is the number of non-empty native tokens below
// which a page is sent to the raster recognizer.
const RasterFallbackThreshold = 5

// NeedsRaster reports whether a page with the given native token count
// triggers raster fallback.
func NeedsRaster(nativeTokens int) bool {
	return nativeTokens < RasterFallbackThreshold
}

// Source is a paged drawing. *harvest.Document implements it.
type Source interface {
	PageCount() (int, error)
	Harvest(index int) (*harvest.Page, error)
	Raster(index int) ([]byte, error)
}

// Config controls page parallelism and optional stages.
type Config struct {
	PageWorkers   int
	DisableRaster bool
	Pages         []int // 1-based subset, all pages when empty
}

// PageReport summarizes one page. Err holds a soft failure; the page still
// contributes whatever features it produced.
type PageReport struct {
	Page             int     `json:"page"`
	NativeTokens     int     `json:"native_tokens"`
	RasterUsed       bool    `json:"raster_used"`
	RasterConfidence float64 `json:"raster_confidence,omitempty"`
	Candidates       int     `json:"candidates"`
	Features         int     `json:"features"`
	Unparsed         int     `json:"unparsed"`
	FirstID          int     `json:"first_id,omitempty"`
	Err              string  `json:"error,omitempty"`
}

// Summary is the result of one pipeline run.
type Summary struct {
	Pages    []PageReport  `json:"pages"`
	Features int           `json:"features"`
	Unparsed int           `json:"unparsed"`
	Duration time.Duration `json:"duration"`
}

// Pipeline wires the harvest, recognition and structuring stages.
type Pipeline struct {
	recognizer ocr.Recognizer
	structurer *structure.Structurer
	config     Config
	log        zerolog.Logger
}

// New creates a pipeline. recognizer may be nil to run on native text only.
func New(recognizer ocr.Recognizer, structurer *structure.Structurer, config Config) *Pipeline {
	if config.PageWorkers <= 0 {
		config.PageWorkers = 4
	}
	if structurer == nil {
		structurer = structure.New(nil, structure.Config{})
	}
	return &Pipeline{
		recognizer: recognizer,
		structurer: structurer,
		config:     config,
		log:        logger.WithComponent("extraction"),
	}
}

// Run extracts every selected page of src into reg. Pages run concurrently
// but are appended to the registry in page order, each as one contiguous id
// block. Cancellation is checked between pages; pages already finished stay
// in the registry and the context error is returned with the partial summary.
func (p *Pipeline) Run(ctx context.Context, src Source, reg *registry.Registry) (*Summary, error) {
	const op = "Run"
	start := time.Now()

	log := p.log
	if named, ok := src.(interface{ Path() string }); ok && named.Path() != "" {
		log = log.With().Str("drawing", named.Path()).Logger()
	}

	count, err := src.PageCount()
	if err != nil {
		return nil, fmt.Errorf("%s: page count: %w", op, err)
	}
	indexes, err := p.selectPages(count)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	reports := make([]PageReport, len(indexes))
	c := newCommitter(reg, reports)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.PageWorkers)
	for slot, idx := range indexes {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			features, report := p.processPage(gctx, src, idx, log)
			reports[slot] = report
			c.done(slot, features)
			return nil
		})
	}
	waitErr := g.Wait()
	c.flush()

	summary := &Summary{Duration: time.Since(start)}
	for _, r := range reports {
		if r.Page == 0 {
			continue
		}
		summary.Pages = append(summary.Pages, r)
		summary.Features += r.Features
		summary.Unparsed += r.Unparsed
	}

	if err := ctx.Err(); err != nil {
		log.Warn().Err(err).Int("pages_done", len(summary.Pages)).Msg("Extraction canceled")
		return summary, fmt.Errorf("%s: %w", op, err)
	}
	if waitErr != nil {
		return summary, fmt.Errorf("%s: %w", op, waitErr)
	}

	log.Info().
		Int("pages", len(summary.Pages)).
		Int("features", summary.Features).
		Int("unparsed", summary.Unparsed).
		Dur("duration", summary.Duration).
		Msg("Extraction complete")
	return summary, nil
}

func (p *Pipeline) selectPages(count int) ([]int, error) {
	if len(p.config.Pages) == 0 {
		idx := make([]int, count)
		for i := range idx {
			idx[i] = i
		}
		return idx, nil
	}
	seen := make(map[int]bool)
	var idx []int
	for _, n := range p.config.Pages {
		if n < 1 || n > count {
			return nil, fmt.Errorf("page %d out of range 1-%d", n, count)
		}
		if !seen[n] {
			seen[n] = true
			idx = append(idx, n-1)
		}
	}
	sort.Ints(idx)
	return idx, nil
}

// processPage never fails hard: every stage degrades to fewer features.
func (p *Pipeline) processPage(ctx context.Context, src Source, idx int, log zerolog.Logger) ([]models.Feature, PageReport) {
	report := PageReport{Page: idx + 1}
	plog := logger.WithPage(log, idx+1)
	softFail := func(stage string, err error) {
		plog.Warn().Err(err).Str("stage", stage).Msg("Page stage failed, continuing")
		if report.Err == "" {
			report.Err = fmt.Sprintf("%s: %v", stage, err)
		}
	}

	page, err := src.Harvest(idx)
	if err != nil {
		softFail("harvest", err)
		page = &harvest.Page{Index: idx}
	}
	report.NativeTokens = harvest.CountNonEmpty(page.Tokens)
	clusters := harvest.Cluster(page.Tokens)

	if NeedsRaster(report.NativeTokens) && p.recognizer != nil && !p.config.DisableRaster {
		raster, rconf, err := p.recognize(ctx, src, idx)
		switch {
		case err != nil && ctx.Err() == nil:
			softFail("raster", err)
		case err == nil && raster != nil:
			report.RasterUsed = true
			report.RasterConfidence = rconf
			// raster boxes live in their own coordinate space, cluster separately
			clusters = append(clusters, harvest.Cluster(dedupe(clusters, raster))...)
		}
	}

	var candidates []harvest.Token
	for _, t := range clusters {
		if structure.PassesPrefilter(t.Text) {
			candidates = append(candidates, t)
		}
	}
	report.Candidates = len(candidates)
	if len(candidates) == 0 {
		plog.Info().Int("native_tokens", report.NativeTokens).Msg("No dimension candidates on page")
		return nil, report
	}

	reqs := make([]structure.Request, len(candidates))
	for i, t := range candidates {
		reqs[i] = structure.Request{Text: strings.TrimSpace(t.Text), Hint: neighborHint(candidates, i)}
	}
	outcomes, err := p.structurer.StructureAll(ctx, reqs)
	if err != nil {
		// canceled mid-page, nothing from this page is committed
		report.Err = err.Error()
		return nil, report
	}

	features := make([]models.Feature, 0, len(candidates))
	for i, t := range candidates {
		f := models.Feature{
			Page:       idx + 1,
			Region:     t.Region,
			RawValue:   reqs[i].Text,
			Confidence: t.Confidence,
			Source:     t.Source,
			Spec:       outcomes[i].Spec,
			Status:     models.StatusUnknown,
		}
		if f.Spec == nil {
			report.Unparsed++
		}
		features = append(features, f)
	}
	report.Features = len(features)

	plog.Debug().
		Int("native_tokens", report.NativeTokens).
		Bool("raster", report.RasterUsed).
		Int("features", report.Features).
		Int("unparsed", report.Unparsed).
		Msg("Page extracted")
	return features, report
}

func (p *Pipeline) recognize(ctx context.Context, src Source, idx int) ([]harvest.Token, float64, error) {
	img, err := src.Raster(idx)
	if err != nil {
		return nil, 0, err
	}
	if len(img) == 0 {
		return nil, 0, errors.New("page has no raster image")
	}
	res, err := p.recognizer.Recognize(ctx, img)
	if err != nil {
		return nil, 0, err
	}
	return ocr.ResultTokens(res), res.Confidence, nil
}

// dedupe drops recognized tokens whose text the native layer already has.
func dedupe(native, raster []harvest.Token) []harvest.Token {
	have := make(map[string]bool, len(native))
	for _, t := range native {
		have[strings.TrimSpace(t.Text)] = true
	}
	var out []harvest.Token
	for _, t := range raster {
		if !have[strings.TrimSpace(t.Text)] {
			out = append(out, t)
		}
	}
	return out
}

// neighborHint gives the structurer the adjacent candidates as context.
func neighborHint(c []harvest.Token, i int) string {
	var parts []string
	if i > 0 {
		parts = append(parts, strings.TrimSpace(c[i-1].Text))
	}
	if i+1 < len(c) {
		parts = append(parts, strings.TrimSpace(c[i+1].Text))
	}
	return strings.Join(parts, " | ")
}

// committer appends finished pages to the registry in page order.
type committer struct {
	mu       sync.Mutex
	reg      *registry.Registry
	reports  []PageReport
	next     int
	finished map[int][]models.Feature
}

func newCommitter(reg *registry.Registry, reports []PageReport) *committer {
	return &committer{reg: reg, reports: reports, finished: make(map[int][]models.Feature)}
}

func (c *committer) done(slot int, fs []models.Feature) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finished[slot] = fs
	for {
		fs, ok := c.finished[c.next]
		if !ok {
			return
		}
		c.commit(c.next, fs)
		c.next++
	}
}

// flush commits pages left behind a gap, which only happens when the run
// was canceled before some page started.
func (c *committer) flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	slots := make([]int, 0, len(c.finished))
	for slot := range c.finished {
		slots = append(slots, slot)
	}
	sort.Ints(slots)
	for _, slot := range slots {
		c.commit(slot, c.finished[slot])
	}
}

func (c *committer) commit(slot int, fs []models.Feature) {
	delete(c.finished, slot)
	if len(fs) == 0 {
		return
	}
	stored := c.reg.AppendBatch(fs)
	c.reports[slot].FirstID = stored[0].ID
}
