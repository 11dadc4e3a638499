package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/ehr/physio/internal/domain/evolution"
)

// DefaultSheetBaseURL is the Google Docs host serving sheet exports.
const DefaultSheetBaseURL = "https://docs.google.com"

const maxSheetBytes = 32 << 20

// SheetConfig configures the Google Sheets adapter.
type SheetConfig struct {
	BaseURL     string
	SheetID     string
	SheetName   string
	MaxRetries  uint
	DateLayouts []string
	Timeout     time.Duration
}

// SheetSource reads the assessment table from a published Google Sheet
// through its CSV export endpoint.
type SheetSource struct {
	cfg      SheetConfig
	client   *http.Client
	logger   zerolog.Logger
	observer Observer
	backOff  func() backoff.BackOff
	maxBytes int64
}

func NewSheetSource(cfg SheetConfig, logger zerolog.Logger) (*SheetSource, error) {
	if cfg.SheetID == "" {
		return nil, fmt.Errorf("sheet id required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultSheetBaseURL
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SheetSource{
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.Timeout},
		logger:   logger.With().Str("source", "sheet").Logger(),
		observer: nopObserver{},
		backOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
		maxBytes: maxSheetBytes,
	}, nil
}

func (s *SheetSource) SetObserver(o Observer) {
	if o != nil {
		s.observer = o
	}
}

// URL returns the CSV export URL of the configured sheet.
func (s *SheetSource) URL() string {
	q := url.Values{}
	q.Set("tqx", "out:csv")
	if s.cfg.SheetName != "" {
		q.Set("sheet", s.cfg.SheetName)
	}
	return fmt.Sprintf("%s/spreadsheets/d/%s/gviz/tq?%s",
		strings.TrimRight(s.cfg.BaseURL, "/"), url.PathEscape(s.cfg.SheetID), q.Encode())
}

// RawCSV downloads the sheet export. Server errors and 429 are retried with
// exponential backoff; other client errors fail immediately.
func (s *SheetSource) RawCSV(ctx context.Context) ([]byte, error) {
	target := s.URL()
	attempt := 0
	body, err := backoff.Retry(ctx, func() ([]byte, error) {
		attempt++
		return s.fetch(ctx, target)
	},
		backoff.WithBackOff(s.backOff()),
		backoff.WithMaxTries(s.cfg.MaxRetries+1),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", next).Msg("sheet fetch failed, retrying")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch sheet: %v", evolution.ErrDataUnavailable, err)
	}
	return body, nil
}

func (s *SheetSource) fetch(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "text/csv")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("unexpected status %d", resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, err
	}
	// A truncated export would parse as a smaller, valid table.
	if int64(len(body)) > s.maxBytes {
		return nil, backoff.Permanent(fmt.Errorf("sheet export exceeds %d bytes", s.maxBytes))
	}
	return body, nil
}

// Records downloads and parses the sheet.
func (s *SheetSource) Records(ctx context.Context) ([]evolution.PatientRecord, error) {
	start := time.Now()
	records, err := s.records(ctx)
	s.observer.ObserveFetch("sheet", err, time.Since(start), len(records))
	return records, err
}

func (s *SheetSource) records(ctx context.Context) ([]evolution.PatientRecord, error) {
	body, err := s.RawCSV(ctx)
	if err != nil {
		return nil, err
	}
	records, stats, err := ParseTable(bytes.NewReader(body), s.cfg.DateLayouts)
	if err != nil {
		return nil, err
	}
	observeStats(s.observer, stats)
	s.logger.Debug().
		Int("rows", stats.Rows).
		Int("records", stats.Records).
		Int("missing_id", stats.MissingID).
		Int("bad_date", stats.BadDate).
		Int("duplicates", stats.Duplicates).
		Msg("sheet parsed")
	return records, nil
}
