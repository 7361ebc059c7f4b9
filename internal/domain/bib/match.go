package bib

import (
	"context"
	"fmt"

	"github.com/okian/finishline/internal/domain/model"
)

// StartList resolves bib numbers to athletes for one event.
type StartList interface {
	// LookupBib returns the athlete wearing bib in event. found is false on a miss.
	LookupBib(ctx context.Context, eventID, bib string) (athlete model.Athlete, found bool, err error)
}

// Matcher resolves bib detections by exact bib-number equality.
type Matcher struct {
	startList StartList
}

// NewMatcher creates a Matcher backed by startList.
func NewMatcher(startList StartList) *Matcher {
	return &Matcher{startList: startList}
}

// Match returns one BibMatch per detection found on the start list. Misses are
// dropped silently; lookup failures abort the match.
func (m *Matcher) Match(ctx context.Context, eventID string, detections []model.BibDetection) ([]model.BibMatch, error) {
	if len(detections) == 0 || eventID == "" {
		return nil, nil
	}
	matches := make([]model.BibMatch, 0, len(detections))
	for _, d := range detections {
		athlete, found, err := m.startList.LookupBib(ctx, eventID, d.Number)
		if err != nil {
			return nil, fmt.Errorf("%w: bib %s: %w", ErrLookup, d.Number, err)
		}
		if !found || athlete.ID == "" {
			continue
		}
		matches = append(matches, model.BibMatch{BibDetection: d, Athlete: athlete})
	}
	return matches, nil
}
