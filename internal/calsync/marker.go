package calsync

import (
	"regexp"
	"strings"
	"unicode"

	"jiracal/internal/model"
)

// The correlation marker is the only link between a worklog and the event
// created for it. Its grammar lives here and nowhere else.
const markerPrefix = "[JIRA:"

// markerRe matches against whitespace-free text, so the token cannot hold
// whitespace by construction; it stops at the first closing bracket.
var markerRe = regexp.MustCompile(`\[JIRA:([^\]]+)\]`)

// FormatMarker renders the correlation marker for a worklog id.
func FormatMarker(worklogID string) string {
	return markerPrefix + worklogID + "]"
}

// ExtractID finds the last correlation marker in text and returns its
// token. Projections append the marker after all free text, so markers
// quoted in a worklog description or issue title never win. All whitespace
// is removed before searching, which undoes line folding or re-wrapping
// applied by calendar servers.
func ExtractID(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	all := markerRe.FindAllStringSubmatch(stripSpace(text), -1)
	if len(all) == 0 {
		return "", false
	}
	return all[len(all)-1][1], true
}

// EventID returns the worklog id an event was created for. The parsed
// description is consulted first, then the raw stored representation.
func EventID(ev model.CalendarEvent) (string, bool) {
	if id, ok := ExtractID(ev.Description); ok {
		return id, true
	}
	return ExtractID(ev.Raw)
}

// Matches reports whether ev carries the marker of r. Comparison is exact and
// case-sensitive.
func Matches(r model.Record, ev model.CalendarEvent) bool {
	id, ok := EventID(ev)
	return ok && id == r.WorklogID
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
