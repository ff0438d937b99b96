// Package sheets implements the SheetStore port on the Google Sheets API.
package sheets

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"inbox_worker/core/domain"
	out "inbox_worker/core/port/out"
	"inbox_worker/pkg/apperr"
	"inbox_worker/pkg/logger"
)

// header is the fixed column schema of the summaries sheet.
var header = []string{
	"id", "email", "source", "role", "role_confidence",
	"contact_summary", "threads", "last_summary",
}

const defaultSheetRange = "Summaries"

// Adapter implements out.SheetStore on one spreadsheet tab, guarded by a
// circuit breaker so a flaky Sheets API degrades to skipped syncs instead
// of hammering the quota.
type Adapter struct {
	service       *sheets.Service
	spreadsheetID string
	sheetRange    string
	cb            *gobreaker.CircuitBreaker
}

// Config holds the sheet location.
type Config struct {
	SpreadsheetID string
	SheetRange    string // tab name, defaults to "Summaries"
}

// NewAdapter creates a sheets adapter from an OAuth token.
func NewAdapter(ctx context.Context, token *oauth2.Token, oauthCfg *oauth2.Config, cfg Config) (*Adapter, error) {
	client := oauthCfg.Client(ctx, token)
	service, err := sheets.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return newAdapter(service, cfg), nil
}

func newAdapter(service *sheets.Service, cfg Config) *Adapter {
	sheetRange := cfg.SheetRange
	if sheetRange == "" {
		sheetRange = defaultSheetRange
	}

	cbSettings := gobreaker.Settings{
		Name:        "sheets-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		},
	}

	return &Adapter{
		service:       service,
		spreadsheetID: cfg.SpreadsheetID,
		sheetRange:    sheetRange,
		cb:            gobreaker.NewCircuitBreaker(cbSettings),
	}
}

// ReadRows loads every data row from the sheet. A missing or empty tab
// yields no rows. Rows shorter than the schema are padded; the header row
// is skipped.
func (a *Adapter) ReadRows(ctx context.Context) ([]domain.SheetRow, error) {
	var resp *sheets.ValueRange
	err := a.execute(func() error {
		var apiErr error
		resp, apiErr = a.service.Spreadsheets.Values.
			Get(a.spreadsheetID, a.sheetRange).
			Context(ctx).
			Do()
		return apiErr
	})
	if err != nil {
		return nil, apperr.StoreError("read sheet", err)
	}

	if resp == nil || len(resp.Values) == 0 {
		return nil, nil
	}

	rows := make([]domain.SheetRow, 0, len(resp.Values))
	for i, raw := range resp.Values {
		if i == 0 && isHeaderRow(raw) {
			continue
		}
		cells := make([]string, len(header))
		for j := range cells {
			if j < len(raw) {
				cells[j] = fmt.Sprint(raw[j])
			}
		}
		conf, _ := strconv.ParseFloat(cells[4], 64)
		rows = append(rows, domain.SheetRow{
			ID:             cells[0],
			Email:          cells[1],
			Source:         cells[2],
			Role:           cells[3],
			RoleConfidence: conf,
			ContactSummary: cells[5],
			Threads:        cells[6],
			LastSummary:    cells[7],
		})
	}
	return rows, nil
}

// WriteRows replaces the whole data range: header first, then the rows in
// the order given. The sync engine owns ordering and change detection.
func (a *Adapter) WriteRows(ctx context.Context, rows []domain.SheetRow) error {
	values := make([][]interface{}, 0, len(rows)+1)
	hdr := make([]interface{}, len(header))
	for i, h := range header {
		hdr[i] = h
	}
	values = append(values, hdr)

	for _, row := range rows {
		values = append(values, []interface{}{
			row.ID,
			row.Email,
			row.Source,
			row.Role,
			strconv.FormatFloat(row.RoleConfidence, 'f', 3, 64),
			row.ContactSummary,
			row.Threads,
			row.LastSummary,
		})
	}

	err := a.execute(func() error {
		_, clearErr := a.service.Spreadsheets.Values.
			Clear(a.spreadsheetID, a.sheetRange, &sheets.ClearValuesRequest{}).
			Context(ctx).
			Do()
		if clearErr != nil {
			return clearErr
		}
		_, updateErr := a.service.Spreadsheets.Values.
			Update(a.spreadsheetID, a.sheetRange, &sheets.ValueRange{Values: values}).
			ValueInputOption("RAW").
			Context(ctx).
			Do()
		return updateErr
	})
	if err != nil {
		return apperr.StoreError("write sheet", err)
	}
	return nil
}

// nonCircuitError wraps client-side failures so they do not trip the
// breaker.
type nonCircuitError struct {
	err error
}

func (e *nonCircuitError) Error() string { return e.err.Error() }
func (e *nonCircuitError) Unwrap() error { return e.err }

func (a *Adapter) execute(fn func() error) error {
	_, err := a.cb.Execute(func() (interface{}, error) {
		if err := fn(); err != nil {
			if apiErr, ok := err.(*googleapi.Error); ok {
				switch apiErr.Code {
				case 500, 502, 503, 429:
					return nil, err
				case 400, 401, 403, 404:
					return nil, &nonCircuitError{err: err}
				}
			}
			return nil, err
		}
		return nil, nil
	})

	if nce, ok := err.(*nonCircuitError); ok {
		return nce.err
	}
	return err
}

func isHeaderRow(raw []interface{}) bool {
	return len(raw) > 0 && fmt.Sprint(raw[0]) == header[0]
}

// Ensure Adapter implements out.SheetStore
var _ out.SheetStore = (*Adapter)(nil)
