// Package bib turns raw OCR text into bib numbers and resolves them against
// an event start list.
package bib

import (
	"regexp"
	"sort"
	"strings"

	"github.com/okian/finishline/internal/domain/model"
)

// bibPattern accepts 1-4 digit race numbers only.
var bibPattern = regexp.MustCompile(`^[0-9]{1,4}$`)

// Extract keeps numeric tokens that look like bib numbers and deduplicates
// them by number, keeping the most confident occurrence. Every detection is
// used: WORD entries are taken whole and LINE entries are split on whitespace,
// and the overlap between them collapses in the dedup step. Output is sorted
// by confidence desc, then number asc.
func Extract(lines []model.TextLine) []model.BibDetection {
	best := make(map[string]model.BibDetection)
	for _, line := range lines {
		for _, token := range tokens(line) {
			if !bibPattern.MatchString(token) {
				continue
			}
			cur, ok := best[token]
			if ok && cur.Confidence >= line.Confidence {
				continue
			}
			best[token] = model.BibDetection{
				Number:      token,
				Confidence:  line.Confidence,
				BoundingBox: line.BoundingBox,
			}
		}
	}

	out := make([]model.BibDetection, 0, len(best))
	for _, d := range best {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Number < out[j].Number
	})
	return out
}

func tokens(line model.TextLine) []string {
	text := strings.TrimSpace(line.Text)
	if text == "" {
		return nil
	}
	if line.Kind == model.TextWordKind {
		return []string{text}
	}
	return strings.Fields(text)
}
