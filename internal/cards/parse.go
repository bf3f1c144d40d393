// Package cards turns model responses into flashcards.
package cards

import (
	"regexp"
	"strings"
)

var (
	questionRe = regexp.MustCompile(`(?s)<Question>(.*?)</Question>`)
	answerRe   = regexp.MustCompile(`(?s)<Answer>(.*?)</Answer>`)
)

// Pair is one parsed question and answer.
type Pair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Parse collects every Question span and every Answer span in order and
// pairs them positionally. Surplus spans of either kind are dropped, so a
// response with a missing tag can shift later answers onto the wrong
// question. Tags are case-sensitive; content may span lines.
func Parse(response string) []Pair {
	qs := spans(questionRe, response)
	as := spans(answerRe, response)
	n := len(qs)
	if len(as) < n {
		n = len(as)
	}
	out := make([]Pair, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Pair{Question: qs[i], Answer: as[i]})
	}
	return out
}

func spans(re *regexp.Regexp, s string) []string {
	matches := re.FindAllStringSubmatch(s, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return out
}
