package reviewclient

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/okian/finishline/internal/domain/model"
	"github.com/okian/finishline/internal/domain/types"
)

func newTable(w io.Writer, header table.Row, rightAligned ...int) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(header)
	configs := make([]table.ColumnConfig, 0, len(rightAligned))
	for _, n := range rightAligned {
		configs = append(configs, table.ColumnConfig{Number: n, Align: text.AlignRight, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw
}

// RenderQueue writes a page of queue items as a table.
func RenderQueue(w io.Writer, page types.Page[model.QueueItem]) {
	if len(page.Items) == 0 {
		fmt.Fprintln(w, "Queue is empty")
		return
	}
	tw := newTable(w, table.Row{"ID", "Image", "Athlete", "Bib", "Score", "Status", "Claimed by", "Assigned", "Created"}, 5)
	for _, it := range page.Items {
		tw.AppendRow(table.Row{
			it.ID,
			it.ImageID,
			athleteLabel(it.AthleteID, it.AthleteName),
			deref(it.BibNumber),
			score(it.CombinedScore),
			it.Status,
			deref(it.ClaimedBy),
			deref(it.AssignedTo),
			it.CreatedAt.Format(time.RFC3339),
		})
	}
	tw.SetCaption("page %d of %d, %d items", page.Page, page.TotalPages(), page.Total)
	tw.Render()
}

// RenderItem writes one queue item as a two-column table.
func RenderItem(w io.Writer, it model.QueueItem) {
	tw := newTable(w, table.Row{"Field", "Value"})
	tw.AppendRows([]table.Row{
		{"ID", it.ID},
		{"Image", it.ImageID},
		{"Event", it.EventID},
		{"Athlete", athleteLabel(it.AthleteID, it.AthleteName)},
		{"Bib", deref(it.BibNumber)},
		{"Face confidence", score(it.Confidence)},
		{"Combined score", score(it.CombinedScore)},
		{"Status", it.Status},
		{"Claimed by", deref(it.ClaimedBy)},
		{"Claimed until", timeLabel(it.ClaimedUntil)},
		{"Assigned to", deref(it.AssignedTo)},
		{"Approved by", deref(it.ApprovedBy)},
		{"Rejected by", deref(it.RejectedBy)},
		{"Rejection reason", deref(it.RejectionReason)},
		{"Notes", it.Notes},
	})
	tw.Render()
}

// RenderImage writes an image summary and its recognitions.
func RenderImage(w io.Writer, img model.ImageRecord) {
	fmt.Fprintf(w, "Image %s: %s, %d face(s)\n", img.ImageID, img.RecognitionStatus, img.FaceCount)
	if len(img.RecognizedAthletes) == 0 {
		return
	}
	tw := newTable(w, table.Row{"Athlete", "Origin", "Face", "Bib", "Match", "Bib conf", "Score", "Status"}, 5, 6, 7)
	for _, r := range img.RecognizedAthletes {
		face := ""
		if r.FaceIndex != nil {
			face = strconv.Itoa(*r.FaceIndex)
		}
		tw.AppendRow(table.Row{
			athleteLabel(r.AthleteID, r.AthleteName),
			r.Origin(),
			face,
			deref(r.BibNumber),
			score(r.MatchConfidence),
			score(r.BibConfidence),
			score(r.CombinedScore),
			r.Status,
		})
	}
	tw.Render()
}

// RenderStats writes service statistics sorted by key.
func RenderStats(w io.Writer, stats map[string]any) {
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	tw := newTable(w, table.Row{"Stat", "Value"})
	for _, k := range keys {
		tw.AppendRow(table.Row{k, fmt.Sprint(stats[k])})
	}
	tw.Render()
}

// RenderSummary writes the outcome of a batch submission.
func RenderSummary(w io.Writer, s SubmitSummary) {
	tw := newTable(w, table.Row{"Outcome", "Jobs"}, 2)
	tw.AppendRows([]table.Row{
		{"accepted", s.Accepted},
		{"duplicate", s.Duplicate},
		{"throttled", s.Throttled},
		{"failed", s.Failed},
	})
	tw.AppendFooter(table.Row{"submitted", s.Submitted})
	tw.SetCaption("took %s", s.Duration.Round(time.Millisecond))
	tw.Render()
	for _, err := range s.Errors {
		fmt.Fprintln(w, err)
	}
}

func athleteLabel(id, name *string) string {
	switch {
	case id == nil:
		return "-"
	case name != nil && *name != "":
		return fmt.Sprintf("%s (%s)", *name, *id)
	}
	return *id
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func score(f float64) string { return strconv.FormatFloat(f, 'f', 1, 64) }

func timeLabel(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
