package report

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"jiracal/internal/model"
)

// Report column names, matched by header text rather than position.
const (
	ColStartTime   = "Start Time"
	ColTimeSpent   = "Time Spent (s)"
	ColDescription = "Worklog Description"
	ColIssueKey    = "Issue Key"
	ColIssueTitle  = "Issue Summary"
	ColWorklogID   = "Worklog Id"
)

// StartTimeLayout is the report's start time format, e.g. "01. Jan 2024 09:00".
// The day may or may not be zero-padded.
const StartTimeLayout = "2. Jan 2006 15:04"

var requiredColumns = []string{
	ColStartTime,
	ColTimeSpent,
	ColDescription,
	ColIssueKey,
	ColIssueTitle,
	ColWorklogID,
}

// Parse reads a delimited worklog report (header row first) into records.
// Start times are interpreted in loc. Any bad row fails the whole parse.
func Parse(r io.Reader, loc *time.Location) ([]model.Record, error) {
	if loc == nil {
		loc = time.Local
	}

	cr := csv.NewReader(skipBOM(r))
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &MissingColumnError{Column: requiredColumns[0]}
	}
	if err != nil {
		return nil, &MalformedRecordError{Row: 1, Err: err}
	}

	idx, err := indexColumns(header)
	if err != nil {
		return nil, err
	}

	records := make([]model.Record, 0)
	for row := 2; ; row++ {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &MalformedRecordError{Row: row, Err: err}
		}
		if isBlank(fields) {
			continue
		}

		rec, err := parseRow(row, fields, idx, loc)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, nil
}

func indexColumns(header []string) (map[string]int, error) {
	pos := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if _, dup := pos[name]; !dup {
			pos[name] = i
		}
	}

	idx := make(map[string]int, len(requiredColumns))
	for _, col := range requiredColumns {
		i, ok := pos[col]
		if !ok {
			return nil, &MissingColumnError{Column: col}
		}
		idx[col] = i
	}
	return idx, nil
}

func parseRow(row int, fields []string, idx map[string]int, loc *time.Location) (model.Record, error) {
	cell := func(col string) (string, error) {
		i := idx[col]
		if i >= len(fields) {
			return "", &MalformedRecordError{Row: row, Column: col, Err: fmt.Errorf("row has %d fields", len(fields))}
		}
		return fields[i], nil
	}

	var (
		rec model.Record
		err error
		raw string
	)

	if raw, err = cell(ColStartTime); err != nil {
		return rec, err
	}
	rec.StartTime, err = time.ParseInLocation(StartTimeLayout, strings.TrimSpace(raw), loc)
	if err != nil {
		return rec, &MalformedRecordError{Row: row, Column: ColStartTime, Value: raw, Err: err}
	}

	if raw, err = cell(ColTimeSpent); err != nil {
		return rec, err
	}
	rec.DurationSeconds, err = strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return rec, &MalformedRecordError{Row: row, Column: ColTimeSpent, Value: raw, Err: err}
	}
	if rec.DurationSeconds < 0 {
		return rec, &MalformedRecordError{Row: row, Column: ColTimeSpent, Value: raw, Err: errors.New("negative duration")}
	}
	// Beyond this the end time can no longer be represented as a time.Duration.
	if rec.DurationSeconds > math.MaxInt64/int64(time.Second) {
		return rec, &MalformedRecordError{Row: row, Column: ColTimeSpent, Value: raw, Err: errors.New("duration out of range")}
	}

	if rec.Description, err = cell(ColDescription); err != nil {
		return rec, err
	}
	if raw, err = cell(ColIssueKey); err != nil {
		return rec, err
	}
	rec.IssueKey = strings.TrimSpace(raw)
	if rec.IssueTitle, err = cell(ColIssueTitle); err != nil {
		return rec, err
	}

	if raw, err = cell(ColWorklogID); err != nil {
		return rec, err
	}
	rec.WorklogID = strings.TrimSpace(raw)
	if rec.WorklogID == "" || strings.ContainsAny(rec.WorklogID, " \t\r\n]") {
		return rec, &MalformedRecordError{Row: row, Column: ColWorklogID, Value: raw, Err: errors.New("unusable worklog id")}
	}

	return rec, nil
}

func isBlank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// skipBOM drops a leading UTF-8 byte order mark, which spreadsheet-oriented
// exports like to prepend.
func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if ch, _, err := br.ReadRune(); err == nil && ch != '\ufeff' {
		_ = br.UnreadRune()
	}
	return br
}
