package cards

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/flashdeck/internal/analyzer"
	"github.com/local/flashdeck/internal/dispatcher"
	"github.com/local/flashdeck/internal/imagerender"
	mpkg "github.com/local/flashdeck/internal/metrics"
	"github.com/local/flashdeck/internal/page"
	"github.com/local/flashdeck/internal/prompt"
)

// Card is one flashcard. Number runs across the whole deck starting at 1.
type Card struct {
	Number   int    `json:"number"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Chapter  string `json:"chapter"`
	Page     int    `json:"page"`
	Route    string `json:"route"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

// Backend answers one page request.
type Backend interface {
	Dispatch(ctx context.Context, call dispatcher.Call) (dispatcher.Result, error)
}

// Creator sends pages to the backend chosen by their analysis and parses
// the replies into cards.
type Creator struct {
	backend Backend
	prompts prompt.Library
}

func NewCreator(backend Backend, prompts prompt.Library) *Creator {
	return &Creator{backend: backend, prompts: prompts}
}

// PageResult is the reply for a single page.
type PageResult struct {
	Page     int
	Route    string
	Provider string
	Model    string
	Response string
	Pairs    []Pair
	Err      error
}

// Progress is called after each page with the number of pages done.
type Progress func(done, total int)

// Page sends one page to the route picked by a. Backend failures are
// reported in Err with an empty Response and no pairs.
func (c *Creator) Page(ctx context.Context, jobID string, p page.Page, a analyzer.PageAnalysis) PageResult {
	res := PageResult{Page: p.Index, Route: a.Route()}
	set := c.prompts.For(a.UseExpensiveModel)

	call := dispatcher.Call{
		JobID:        jobID,
		PageID:       p.Index,
		Fast:         !a.UseExpensiveModel,
		SystemPrompt: set.System,
	}
	if a.UseExpensiveModel {
		b64, mime, err := imagerender.EncodePage(p)
		if err != nil {
			res.Err = err
			return res
		}
		call.Messages = set.ImagePage(b64, mime)
	} else {
		call.Messages = set.TextPage(a.Text)
	}

	out, err := c.backend.Dispatch(ctx, call)
	if err != nil {
		res.Err = err
		return res
	}
	res.Provider = out.Provider
	res.Model = out.Model
	res.Response = out.Text
	res.Pairs = Parse(out.Text)
	return res
}

// Create processes pages in order and numbers the cards across the deck.
// A page whose backend call fails contributes no cards; only cancellation
// of ctx stops the run.
func (c *Creator) Create(ctx context.Context, jobID, chapter string, pages []page.Page, results analyzer.Results, progress Progress) ([]Card, error) {
	start := time.Now()
	var out []Card
	failed := 0
	for i, p := range pages {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		a, ok := results.ByIndex(p.Index)
		if !ok {
			return out, fmt.Errorf("page %d has no analysis", p.Index)
		}

		res := c.Page(ctx, jobID, p, a)
		if res.Err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			failed++
			log.Warn().
				Err(res.Err).
				Str("job_id", jobID).
				Int("page", p.Index).
				Str("route", res.Route).
				Msg("page produced no cards")
		}
		mpkg.AddCards(res.Route, len(res.Pairs), res.Err != nil)

		for _, pair := range res.Pairs {
			out = append(out, Card{
				Number:   len(out) + 1,
				Question: pair.Question,
				Answer:   pair.Answer,
				Chapter:  chapter,
				Page:     p.Index,
				Route:    res.Route,
				Provider: res.Provider,
				Model:    res.Model,
			})
		}
		if progress != nil {
			progress(i+1, len(pages))
		}
	}

	log.Info().
		Str("job_id", jobID).
		Str("chapter", chapter).
		Int("pages", len(pages)).
		Int("failed_pages", failed).
		Int("cards", len(out)).
		Dur("duration", time.Since(start)).
		Msg("flashcards created")
	return out, nil
}
