package cards

import (
	"encoding/csv"
	"fmt"
	"io"
)

// DefaultDelimiter separates the CSV columns.
const DefaultDelimiter = ';'

// WriteCSV writes a Question,Answer header and one row per card.
func WriteCSV(w io.Writer, cards []Card, delimiter rune) error {
	if delimiter == 0 {
		delimiter = DefaultDelimiter
	}
	cw := csv.NewWriter(w)
	cw.Comma = delimiter
	if err := cw.Write([]string{"Question", "Answer"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, c := range cards {
		if err := cw.Write([]string{c.Question, c.Answer}); err != nil {
			return fmt.Errorf("write card %d: %w", c.Number, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
