package store

import (
	"context"
	"fmt"
	"strconv"

	redis "github.com/redis/go-redis/v9"

	"github.com/local/flashdeck/internal/analyzer"
)

func (s *RedisStore) pageKey(jobID string, page int) string {
	return fmt.Sprintf("%s:%s:page:%d", s.keyNS, jobID, page)
}

func (s *RedisStore) pagesKey(jobID string) string {
	return fmt.Sprintf("%s:%s:pages", s.keyNS, jobID)
}

// SaveAnalysis writes one hash per page plus a sorted set of page indexes.
func (s *RedisStore) SaveAnalysis(ctx context.Context, jobID string, results analyzer.Results) error {
	pipe := s.client.TxPipeline()
	for _, a := range results {
		key := s.pageKey(jobID, a.PageIndex)
		pipe.HSet(ctx, key, map[string]interface{}{
			"route":          a.Route(),
			"text_ratio":     a.TextRatio,
			"text_area":      a.TextArea,
			"graphics_area":  a.GraphicsArea,
			"graphics_ratio": a.GraphicsRatio,
			"complexity":     a.ComplexityScore,
			"graphics_count": a.GraphicsCount,
			"width":          a.PageDimensions.Width,
			"height":         a.PageDimensions.Height,
			"text":           a.Text,
		})
		pipe.ZAdd(ctx, s.pagesKey(jobID), redis.Z{Score: float64(a.PageIndex), Member: a.PageIndex})
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
	}
	if s.ttl > 0 {
		pipe.Expire(ctx, s.pagesKey(jobID), s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) GetAnalysis(ctx context.Context, jobID string) (analyzer.Results, error) {
	idx, err := s.client.ZRange(ctx, s.pagesKey(jobID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(idx) == 0 {
		return nil, nil
	}
	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(idx))
	pages := make([]int, len(idx))
	for i, v := range idx {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("bad page index %q: %w", v, err)
		}
		pages[i] = n
		cmds[i] = pipe.HGetAll(ctx, s.pageKey(jobID, n))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	out := make(analyzer.Results, 0, len(idx))
	for i, cmd := range cmds {
		out = append(out, pageFromHash(pages[i], cmd.Val()))
	}
	return out, nil
}

func pageFromHash(index int, h map[string]string) analyzer.PageAnalysis {
	f := func(k string) float64 {
		v, _ := strconv.ParseFloat(h[k], 64)
		return v
	}
	n := func(k string) int {
		v, _ := strconv.Atoi(h[k])
		return v
	}
	return analyzer.PageAnalysis{
		PageIndex:         index,
		UseExpensiveModel: h["route"] == analyzer.RouteVision,
		TextRatio:         f("text_ratio"),
		TextArea:          f("text_area"),
		GraphicsArea:      f("graphics_area"),
		GraphicsRatio:     f("graphics_ratio"),
		ComplexityScore:   f("complexity"),
		GraphicsCount:     n("graphics_count"),
		PageDimensions:    analyzer.Dimensions{Width: n("width"), Height: n("height")},
		Text:              h["text"],
	}
}
