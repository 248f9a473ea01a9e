package calsync

import (
	"strings"

	"jiracal/internal/model"
)

// Projector turns worklog records into calendar event content.
type Projector struct {
	buckets map[string]struct{}
}

// NewProjector returns a Projector treating the given issue keys as bucket
// issues: catch-all tickets whose key is left out of the event summary.
func NewProjector(bucketIssues []string) Projector {
	b := make(map[string]struct{}, len(bucketIssues))
	for _, k := range bucketIssues {
		k = strings.TrimSpace(k)
		if k != "" {
			b[k] = struct{}{}
		}
	}
	return Projector{buckets: b}
}

// IsBucket reports whether issueKey is on the bucket list.
func (p Projector) IsBucket(issueKey string) bool {
	_, ok := p.buckets[issueKey]
	return ok
}

// Project computes the event fields for r. It has no side effects.
func (p Projector) Project(r model.Record) model.Projection {
	short := ShortDescription(r.Description)

	summary := r.IssueKey + ": " + short
	if p.IsBucket(r.IssueKey) {
		summary = short
	}

	return model.Projection{
		Start:   r.StartTime,
		End:     r.EndTime(),
		Summary: summary,
		Description: r.IssueKey + ": " + r.IssueTitle +
			"\n\n" + r.Description +
			"\n\n" + FormatMarker(r.WorklogID),
	}
}

// ShortDescription is the first line of a worklog description.
func ShortDescription(desc string) string {
	if i := strings.IndexAny(desc, "\r\n"); i >= 0 {
		return desc[:i]
	}
	return desc
}
