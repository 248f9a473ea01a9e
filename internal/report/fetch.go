package report

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tailscale/hujson"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	appLog "jiracal/internal/log"
	"jiracal/internal/model"
)

// ReportPath is the worklog details CSV download endpoint of the time
// tracking plugin.
const ReportPath = "/rest/jttp-rest/latest/download-report/downloadWorklogDetailsReportAsCSV"

const (
	filterStartPath = "filterCondition.worklogStartDate"
	filterEndPath   = "filterCondition.worklogEndDate"

	errPreviewLen = 200
)

// LoadFilter reads a saved report filter definition. Comments and trailing
// commas are allowed in the file and stripped here.
func LoadFilter(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read filter: %w", ErrFetch, err)
	}
	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("%w: filter %s: %w", ErrFetch, path, err)
	}
	if !gjson.ValidBytes(std) {
		return nil, fmt.Errorf("%w: filter %s is not valid JSON", ErrFetch, path)
	}
	return std, nil
}

// RewriteFilter overwrites the filter's date window with w's millisecond
// bounds and returns it as compact JSON. Every other field is preserved.
func RewriteFilter(filter []byte, w model.Window) (string, error) {
	if !gjson.ValidBytes(filter) {
		return "", fmt.Errorf("%w: filter is not valid JSON", ErrFetch)
	}
	out, err := sjson.SetBytes(filter, filterStartPath, w.FromMillis())
	if err != nil {
		return "", fmt.Errorf("%w: set %s: %w", ErrFetch, filterStartPath, err)
	}
	out, err = sjson.SetBytes(out, filterEndPath, w.ToMillis())
	if err != nil {
		return "", fmt.Errorf("%w: set %s: %w", ErrFetch, filterEndPath, err)
	}
	return gjson.GetBytes(out, "@ugly").Raw, nil
}

// Fetcher downloads worklog reports over authenticated HTTPS.
type Fetcher struct {
	client  *http.Client
	baseURL string
	token   string
	filter  []byte
}

// NewFetcher creates a Fetcher for the tracker at domain. A bare host name
// gets an https:// prefix; a value carrying a scheme is used as-is.
func NewFetcher(domain, token string, filter []byte) *Fetcher {
	base := strings.TrimRight(domain, "/")
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		baseURL: base,
		token:   token,
		filter:  filter,
	}
}

// Fetch returns the raw report text for the window.
func (f *Fetcher) Fetch(ctx context.Context, w model.Window) ([]byte, error) {
	filter, err := RewriteFilter(f.filter, w)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("worklogTimeExport", "seconds")
	q.Set("json", filter)
	target := f.baseURL + ReportPath + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	req.Header.Set("Authorization", "Bearer "+f.token)
	req.Header.Set("Accept", "text/csv")

	appLog.Info("report fetch start",
		"url", redactURL(target),
		"from", w.FromMillis(),
		"to", w.ToMillis(),
	)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrFetch, err)
	}

	if resp.StatusCode != http.StatusOK {
		preview := truncate(strings.TrimSpace(string(body)), errPreviewLen)
		return nil, fmt.Errorf("%w: %s: %s", ErrFetch, resp.Status, preview)
	}

	appLog.Info("report fetch success", "url", redactURL(target), "bytes", len(body))
	return body, nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// redactURL hides path and query (which carries the filter) for logging.
func redactURL(u string) string {
	// Example:
	//   https://jira.example.com/rest/...?json=...
	// -> https://jira.example.com/...(redacted)
	const redactedSuffix = "/...(redacted)"

	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return "report://...(redacted)"
	}
	return parsed.Scheme + "://" + parsed.Host + redactedSuffix
}
