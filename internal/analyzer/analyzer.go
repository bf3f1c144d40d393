// Package analyzer decides, page by page, whether a page needs the vision
// model or can be handled by the cheaper text model.
package analyzer

import (
	"context"
	"fmt"
	"image"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/local/flashdeck/internal/complexity"
	"github.com/local/flashdeck/internal/graphics"
	mpkg "github.com/local/flashdeck/internal/metrics"
	"github.com/local/flashdeck/internal/ocr"
	"github.com/local/flashdeck/internal/page"
)

// Dimensions is the page size in pixels.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// PageAnalysis is the routing decision for one page plus the signals behind it.
type PageAnalysis struct {
	PageIndex         int        `json:"page_index"`
	UseExpensiveModel bool       `json:"use_expensive_model"`
	TextRatio         float64    `json:"text_ratio"`
	TextArea          float64    `json:"text_area"`
	GraphicsArea      float64    `json:"graphics_area"`
	GraphicsRatio     float64    `json:"graphics_ratio"`
	ComplexityScore   float64    `json:"complexity_score"`
	PageDimensions    Dimensions `json:"page_dimensions"`
	GraphicsCount     int        `json:"graphics_count"`
	Text              string     `json:"text"`
}

// Route names the backend selected for the page.
func (a PageAnalysis) Route() string {
	if a.UseExpensiveModel {
		return RouteVision
	}
	return RouteText
}

const (
	RouteVision = "vision"
	RouteText   = "text"
)

// Results holds one analysis per page, ordered by page index.
type Results []PageAnalysis

// ByIndex returns the analysis for page index i.
func (r Results) ByIndex(i int) (PageAnalysis, bool) {
	n := sort.Search(len(r), func(k int) bool { return r[k].PageIndex >= i })
	if n < len(r) && r[n].PageIndex == i {
		return r[n], true
	}
	return PageAnalysis{}, false
}

// VisionCount returns how many pages were routed to the vision model.
func (r Results) VisionCount() int {
	n := 0
	for _, a := range r {
		if a.UseExpensiveModel {
			n++
		}
	}
	return n
}

// RegionFinder locates graphic regions on a page image.
type RegionFinder interface {
	Regions(img image.Image) []graphics.Region
}

// Analyzer combines OCR and graphics signals into routing decisions. It keeps
// no state between calls.
type Analyzer struct {
	text    *ocr.Extractor
	regions RegionFinder
}

// New builds an analyzer. A nil finder uses the default graphics extractor.
func New(text *ocr.Extractor, regions RegionFinder) *Analyzer {
	if regions == nil {
		regions = graphics.NewExtractor(graphics.DefaultOptions())
	}
	return &Analyzer{text: text, regions: regions}
}

// Analyze classifies every page. Results are sorted by page index and do not
// depend on cfg.Concurrency.
func (a *Analyzer) Analyze(ctx context.Context, pages []page.Page, cfg Config) (Results, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, &ConfigError{Field: "pages", Reason: "page set is empty", err: ErrNoPages}
	}
	seen := make(map[int]struct{}, len(pages))
	for _, p := range pages {
		if err := p.Validate(); err != nil {
			return nil, &ConfigError{Field: "pages", Reason: err.Error(), err: ErrInvalidConfig}
		}
		if _, dup := seen[p.Index]; dup {
			return nil, &ConfigError{Field: "pages", Reason: fmt.Sprintf("duplicate page index %d", p.Index), err: ErrInvalidConfig}
		}
		seen[p.Index] = struct{}{}
	}

	start := time.Now()
	out := make(Results, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	limit := cfg.Concurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)
	for i, p := range pages {
		i, p := i, p
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := a.AnalyzePage(gctx, p, cfg)
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analyze pages: %w", err)
	}
	sort.Slice(out, func(x, y int) bool { return out[x].PageIndex < out[y].PageIndex })

	log.Info().
		Str("mode", cfg.Mode()).
		Int("pages", len(out)).
		Int("vision_pages", out.VisionCount()).
		Float64("threshold", cfg.TextRatioThreshold).
		Dur("duration", time.Since(start)).
		Msg("page analysis complete")
	return out, nil
}

// AnalyzePage classifies a single page. It never fails: OCR errors fall back
// to empty text or the estimated text area.
func (a *Analyzer) AnalyzePage(ctx context.Context, p page.Page, cfg Config) PageAnalysis {
	start := time.Now()
	var res PageAnalysis
	if cfg.DeepAnalysis {
		res = a.deep(ctx, p)
	} else {
		res = a.shallow(ctx, p)
	}
	res.UseExpensiveModel = Decide(res.TextRatio, res.ComplexityScore, cfg.TextRatioThreshold)

	mpkg.ObservePage(cfg.Mode(), res.Route(), time.Since(start))
	log.Debug().
		Int("page", p.Index).
		Str("mode", cfg.Mode()).
		Str("route", res.Route()).
		Float64("text_ratio", res.TextRatio).
		Float64("complexity", res.ComplexityScore).
		Int("graphics", res.GraphicsCount).
		Msg("page classified")
	return res
}

// Decide applies the routing rule: vision when the text ratio is below the
// threshold or the layout is strictly more complex than ComplexityOverride.
func Decide(textRatio, complexityScore, threshold float64) bool {
	return textRatio < threshold || complexityScore > ComplexityOverride
}

func (a *Analyzer) shallow(ctx context.Context, p page.Page) PageAnalysis {
	text := a.text.Text(ctx, p).Text
	textArea := float64(utf8.RuneCountInString(strings.TrimSpace(text))) * ShallowCharArea
	ratio := 0.0
	if text != "" {
		ratio = textArea / p.Area()
		if ratio > 1 {
			ratio = 1
		}
	}
	return PageAnalysis{
		PageIndex:      p.Index,
		TextRatio:      ratio,
		TextArea:       textArea,
		PageDimensions: Dimensions{Width: p.Width, Height: p.Height},
		Text:           text,
	}
}

func (a *Analyzer) deep(ctx context.Context, p page.Page) PageAnalysis {
	text := a.text.Text(ctx, p).Text
	textArea := estimateTextArea(a.text.Glyphs(ctx, p), p)
	regions := a.regions.Regions(p.Image)

	graphicsArea := 0.0
	for _, r := range regions {
		graphicsArea += r.Area()
	}
	var textRatio, graphicsRatio float64
	if content := textArea + graphicsArea; content > 0 {
		textRatio = textArea / content
		graphicsRatio = graphicsArea / content
	}

	breakdown := complexity.Explain(text, regions)
	log.Debug().
		Int("page", p.Index).
		Int("regions", len(regions)).
		Interface("complexity", breakdown).
		Msg("complexity breakdown")

	return PageAnalysis{
		PageIndex:       p.Index,
		TextRatio:       textRatio,
		TextArea:        textArea,
		GraphicsArea:    graphicsArea,
		GraphicsRatio:   graphicsRatio,
		ComplexityScore: breakdown.Total,
		PageDimensions:  Dimensions{Width: p.Width, Height: p.Height},
		GraphicsCount:   len(regions),
		Text:            text,
	}
}
