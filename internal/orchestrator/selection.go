package orchestrator

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// maxSelection bounds a range expansion such as "0-99999999".
const maxSelection = 10000

// ParsePageList parses a 0-based page selection like "0,2,5-7". Duplicates
// are removed and the result is sorted. An empty string selects all pages.
func ParsePageList(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	seen := make(map[int]struct{})
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, err := parseRange(part)
		if err != nil {
			return nil, err
		}
		if hi-lo+1 > maxSelection || len(seen) > maxSelection {
			return nil, fmt.Errorf("page selection %q is too large", s)
		}
		for i := lo; i <= hi; i++ {
			seen[i] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil, nil
	}
	out := make([]int, 0, len(seen))
	for i := range seen {
		out = append(out, i)
	}
	sort.Ints(out)
	return out, nil
}

func parseRange(part string) (int, int, error) {
	from, to, isRange := strings.Cut(part, "-")
	lo, err := strconv.Atoi(strings.TrimSpace(from))
	if err != nil || lo < 0 {
		return 0, 0, fmt.Errorf("invalid page %q", part)
	}
	if !isRange {
		return lo, lo, nil
	}
	hi, err := strconv.Atoi(strings.TrimSpace(to))
	if err != nil || hi < lo {
		return 0, 0, fmt.Errorf("invalid page range %q", part)
	}
	return lo, hi, nil
}
