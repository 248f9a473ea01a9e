package report

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	appLog "jiracal/internal/log"
	"jiracal/internal/model"
)

// Source fetches and parses the report for a window. It satisfies the sync
// driver's record source.
type Source struct {
	Fetcher  *Fetcher
	Location *time.Location

	// DumpDir, when set, receives a copy of every downloaded report. The
	// copies are for diagnosis only and are never read back.
	DumpDir string
}

func (s *Source) Records(ctx context.Context, w model.Window) ([]model.Record, error) {
	body, err := s.Fetcher.Fetch(ctx, w)
	if err != nil {
		return nil, err
	}

	if s.DumpDir != "" {
		if err := dump(s.DumpDir, w, body); err != nil {
			appLog.Error("report dump failed", err, "dir", s.DumpDir)
		}
	}

	records, err := Parse(bytes.NewReader(body), s.Location)
	if err != nil {
		return nil, err
	}
	appLog.Info("report parsed", "records", len(records))
	return records, nil
}

func dump(dir string, w model.Window, body []byte) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	name := fmt.Sprintf("report-%d-%d.csv", w.FromMillis(), w.ToMillis())
	return os.WriteFile(filepath.Join(dir, name), body, 0o600)
}
