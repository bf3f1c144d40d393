package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/flashdeck/internal/analyzer"
	"github.com/local/flashdeck/internal/cards"
	"github.com/local/flashdeck/internal/converter"
	"github.com/local/flashdeck/internal/filetype"
	"github.com/local/flashdeck/internal/imagerender"
	"github.com/local/flashdeck/internal/page"
)

// ErrUnsupportedType is returned for uploads that cannot become pages.
var ErrUnsupportedType = errors.New("unsupported file type")

// Converter turns a presentation into a PDF.
type Converter interface {
	ConvertToPDF(ctx context.Context, job converter.Job) (converter.Result, error)
}

// Renderer validates PDFs and rasterizes selected pages.
type Renderer interface {
	PageCount(pdfPath string) (int, error)
	RenderFile(ctx context.Context, pdfPath string, indexes []int) ([]page.Page, error)
}

// Pipeline turns one deck file into page analyses and cards.
type Pipeline struct {
	Detector  *filetype.Detector
	Converter Converter
	Renderer  Renderer
	Analyzer  *analyzer.Analyzer
	Creator   *cards.Creator
	// WorkDir holds intermediate PDFs of converted presentations.
	WorkDir string
}

// RunRequest describes one deck run.
type RunRequest struct {
	JobID     string
	InputPath string
	Chapter   string
	Pages     []int
	Analysis  analyzer.Config
}

// Output is the result of a run.
type Output struct {
	Kind     filetype.Kind
	Analysis analyzer.Results
	Cards    []cards.Card
}

// Stage progress, in percent.
const (
	progressLoaded   = 10
	progressAnalyzed = 30
	progressCards    = 90
)

// ProgressFunc reports overall progress in percent with a short message.
type ProgressFunc func(percent int, message string)

// LoadPages detects the file type and produces the selected page images.
// A nil or empty selection loads every page.
func (p *Pipeline) LoadPages(ctx context.Context, path string, indexes []int) ([]page.Page, filetype.Kind, error) {
	info, err := p.Detector.Detect(path)
	if err != nil {
		return nil, filetype.KindUnsupported, err
	}
	switch info.Kind {
	case filetype.KindPDF:
		pages, err := p.renderPDF(ctx, path, indexes)
		return pages, info.Kind, err

	case filetype.KindPresentation:
		if p.Converter == nil {
			return nil, info.Kind, fmt.Errorf("%s: %w", info.Description, converter.ErrUnavailable)
		}
		outDir, err := os.MkdirTemp(p.WorkDir, "convert-*")
		if err != nil {
			return nil, info.Kind, fmt.Errorf("create conversion dir: %w", err)
		}
		defer os.RemoveAll(outDir)
		res, err := p.Converter.ConvertToPDF(ctx, converter.Job{InputPath: path, OutputDir: outDir})
		if err != nil {
			return nil, info.Kind, fmt.Errorf("convert presentation: %w", err)
		}
		pages, err := p.renderPDF(ctx, res.OutputPath, indexes)
		return pages, info.Kind, err

	case filetype.KindImage:
		pg, err := imagerender.LoadImage(path)
		if err != nil {
			return nil, info.Kind, err
		}
		if err := imagerender.CheckSelection(indexes, 1); err != nil {
			return nil, info.Kind, err
		}
		return page.Select([]page.Page{pg}, indexes), info.Kind, nil
	}
	return nil, info.Kind, fmt.Errorf("%w: %s", ErrUnsupportedType, info.MIMEType)
}

// renderPDF counts the pages first so a damaged file or a selection past the
// last page fails before any rendering.
func (p *Pipeline) renderPDF(ctx context.Context, path string, indexes []int) ([]page.Page, error) {
	total, err := p.Renderer.PageCount(path)
	if err != nil {
		return nil, fmt.Errorf("invalid PDF: %w", err)
	}
	if total == 0 {
		return nil, errors.New("invalid PDF: no pages")
	}
	if err := imagerender.CheckSelection(indexes, total); err != nil {
		return nil, err
	}
	return p.Renderer.RenderFile(ctx, path, indexes)
}

// Run loads, classifies and converts the deck into cards. When ctx ends
// during card creation the error comes with an Output holding the cards
// made so far.
func (p *Pipeline) Run(ctx context.Context, req RunRequest, progress ProgressFunc) (*Output, error) {
	if progress == nil {
		progress = func(int, string) {}
	}
	start := time.Now()

	pages, kind, err := p.LoadPages(ctx, req.InputPath, req.Pages)
	if err != nil {
		return nil, fmt.Errorf("load pages: %w", err)
	}
	progress(progressLoaded, fmt.Sprintf("loaded %d pages", len(pages)))

	results, err := p.Analyzer.Analyze(ctx, pages, req.Analysis)
	if err != nil {
		return nil, err
	}
	progress(progressAnalyzed, fmt.Sprintf("%d of %d pages need vision", results.VisionCount(), len(results)))

	cs, err := p.Creator.Create(ctx, req.JobID, req.Chapter, pages, results, func(done, total int) {
		pct := progressAnalyzed + (progressCards-progressAnalyzed)*done/total
		progress(pct, fmt.Sprintf("cards from %d/%d pages", done, total))
	})
	if err != nil {
		if ctx.Err() != nil {
			return &Output{Kind: kind, Analysis: results, Cards: cs}, fmt.Errorf("create cards: %w", err)
		}
		return nil, fmt.Errorf("create cards: %w", err)
	}

	log.Info().
		Str("job_id", req.JobID).
		Str("kind", string(kind)).
		Int("pages", len(pages)).
		Int("vision_pages", results.VisionCount()).
		Int("cards", len(cs)).
		Dur("duration", time.Since(start)).
		Msg("deck processed")
	return &Output{Kind: kind, Analysis: results, Cards: cs}, nil
}
