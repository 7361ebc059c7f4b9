package repository

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/okian/finishline/internal/domain/model"
)

// ErrInvalidStartList indicates a malformed start list document.
var ErrInvalidStartList = errors.New("invalid start list")

type startListDocument struct {
	Entries []model.StartListEntry `yaml:"entries"`
}

// LoadStartListFile reads a YAML start list of the form:
//
//	entries:
//	  - event_id: marathon-2026
//	    bib: "101"
//	    athlete_id: ath-101
//	    name: Ada Runner
func LoadStartListFile(path string) ([]model.StartListEntry, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- operator supplied path
	if err != nil {
		return nil, fmt.Errorf("read start list: %w", err)
	}
	return ParseStartList(raw)
}

// ParseStartList decodes and validates a YAML start list document.
func ParseStartList(raw []byte) ([]model.StartListEntry, error) {
	var doc startListDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidStartList, err)
	}

	seen := make(map[string]int, len(doc.Entries))
	for i := range doc.Entries {
		e := &doc.Entries[i]
		e.EventID = strings.TrimSpace(e.EventID)
		e.BibNumber = strings.TrimSpace(e.BibNumber)
		e.AthleteID = strings.TrimSpace(e.AthleteID)
		if e.EventID == "" || e.BibNumber == "" || e.AthleteID == "" {
			return nil, fmt.Errorf("%w: entry %d needs event_id, bib and athlete_id", ErrInvalidStartList, i)
		}
		key := startListKey(e.EventID, e.BibNumber)
		if prev, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: entries %d and %d share bib %s in %s", ErrInvalidStartList, prev, i, e.BibNumber, e.EventID)
		}
		seen[key] = i
	}
	return doc.Entries, nil
}
