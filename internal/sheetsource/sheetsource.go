// Package sheetsource adapts a Google Sheets tab into the CSV bytes the
// ingestion pipeline consumes. A Fetcher is built either from a
// service-account credentials file (New) or from an already-obtained
// OAuth2 access token (NewWithAccessToken); no token exchange or refresh
// is performed here.
package sheetsource

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/yourorg/csv-ingest/internal/config"
)

// Fetcher implements orchestrator.SheetsFetcher.
type Fetcher struct {
	service    *sheets.Service
	maxRetries int
}

// New builds a Fetcher from a service-account credentials file path.
// credentialsPath is typically GOOGLE_APPLICATION_CREDENTIALS.
func New(ctx context.Context, credentialsPath string, cfg *config.Config) (*Fetcher, error) {
	svc, err := sheets.NewService(ctx,
		option.WithCredentialsFile(credentialsPath),
		option.WithScopes(sheets.SpreadsheetsReadonlyScope),
	)
	if err != nil {
		return nil, fmt.Errorf("sheetsource: build sheets service: %w", err)
	}
	maxRetries := config.DefaultSheetsMaxRetries
	if cfg != nil {
		maxRetries = cfg.SheetsMaxRetries
	}
	return &Fetcher{service: svc, maxRetries: maxRetries}, nil
}

// NewWithAccessToken builds a Fetcher from an already-obtained OAuth2
// access token (e.g. a user's Google session), bypassing the
// credentials-file service-account path.
func NewWithAccessToken(ctx context.Context, accessToken string, cfg *config.Config) (*Fetcher, error) {
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))
	svc, err := sheets.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("sheetsource: build sheets service with token: %w", err)
	}
	maxRetries := config.DefaultSheetsMaxRetries
	if cfg != nil {
		maxRetries = cfg.SheetsMaxRetries
	}
	return &Fetcher{service: svc, maxRetries: maxRetries}, nil
}

// FetchCSV reads the named tab's full used range and returns it as RFC
// 4180 CSV. sheetName may be empty to use the spreadsheet's first sheet.
func (f *Fetcher) FetchCSV(ctx context.Context, spreadsheetID, sheetName string) ([]byte, error) {
	rangeStr := sheetName
	if rangeStr == "" {
		meta, err := f.service.Spreadsheets.Get(spreadsheetID).Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("sheetsource: fetch spreadsheet metadata: %w", err)
		}
		if len(meta.Sheets) == 0 {
			return nil, fmt.Errorf("sheetsource: spreadsheet %s has no sheets", spreadsheetID)
		}
		rangeStr = meta.Sheets[0].Properties.Title
	}

	var resp *sheets.ValueRange
	err := retry(f.maxRetries, func() error {
		var callErr error
		resp, callErr = f.service.Spreadsheets.Values.Get(spreadsheetID, rangeStr).Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("sheetsource: fetch values: %w", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, row := range resp.Values {
		record := make([]string, len(row))
		for i, cell := range row {
			record[i] = fmt.Sprintf("%v", cell)
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("sheetsource: write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// retry retries fn on rate-limit/unavailable responses with capped
// exponential backoff.
func retry(maxRetries int, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			if backoff > 8*time.Second {
				backoff = 8 * time.Second
			}
			time.Sleep(backoff)
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if gerr, ok := lastErr.(*googleapi.Error); ok && (gerr.Code == 429 || gerr.Code == 503) {
			continue
		}
		return lastErr
	}
	return lastErr
}
