package sheetsync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/gezisoft/agency_backend/config"
	"google.golang.org/api/sheets/v4"
)

// Remote call timeouts stay well under the sync lock TTL so a hanging Sheets
// call cannot outlive the lock.
const sheetsCallTimeout = 60 * time.Second

// GoogleSheetsProvider reads and appends through the Sheets v4 API.
type GoogleSheetsProvider struct{}

func NewGoogleSheetsProvider() *GoogleSheetsProvider {
	return &GoogleSheetsProvider{}
}

func (p *GoogleSheetsProvider) IsConfigured() bool {
	return config.SheetsConfigured()
}

func (p *GoogleSheetsProvider) service(ctx context.Context) (*sheets.Service, error) {
	return config.GetSheetsService(ctx)
}

func (p *GoogleSheetsProvider) GetMetadata(ctx context.Context, spreadsheetID string) (*SheetMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, sheetsCallTimeout)
	defer cancel()

	svc, err := p.service(ctx)
	if err != nil {
		return nil, err
	}
	ss, err := svc.Spreadsheets.Get(spreadsheetID).Fields("properties.title", "sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get spreadsheet %s: %w", spreadsheetID, err)
	}

	meta := &SheetMetadata{}
	if ss.Properties != nil {
		meta.Title = ss.Properties.Title
	}
	for _, sheet := range ss.Sheets {
		if sheet.Properties != nil {
			meta.Worksheets = append(meta.Worksheets, sheet.Properties.Title)
		}
	}
	return meta, nil
}

func (p *GoogleSheetsProvider) Read(ctx context.Context, spreadsheetID string, tab string) (*SheetData, error) {
	ctx, cancel := context.WithTimeout(ctx, sheetsCallTimeout)
	defer cancel()

	svc, err := p.service(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := svc.Spreadsheets.Values.Get(spreadsheetID, readRange(tab)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read sheet %s tab %q: %w", spreadsheetID, tab, err)
	}

	data := &SheetData{}
	for i, raw := range resp.Values {
		row := make([]string, len(raw))
		for j, cell := range raw {
			row[j] = fmt.Sprintf("%v", cell)
		}
		if i == 0 {
			data.Headers = row
			continue
		}
		data.Rows = append(data.Rows, row)
	}
	return data, nil
}

// GetFingerprint is unsupported: the Sheets API exposes no cheap change
// marker for a single tab, and hashing would cost the same full read as the
// sync itself. The engine falls back to the per-row diff.
func (p *GoogleSheetsProvider) GetFingerprint(ctx context.Context, spreadsheetID string, tab string) (string, error) {
	return "", ErrFingerprintUnsupported
}

func (p *GoogleSheetsProvider) AppendRows(ctx context.Context, spreadsheetID string, tab string, rows [][]string) error {
	ctx, cancel := context.WithTimeout(ctx, sheetsCallTimeout)
	defer cancel()

	svc, err := p.service(ctx)
	if err != nil {
		return err
	}
	values := make([][]interface{}, len(rows))
	for i, row := range rows {
		cells := make([]interface{}, len(row))
		for j, cell := range row {
			cells[j] = cell
		}
		values[i] = cells
	}
	_, err = svc.Spreadsheets.Values.
		Append(spreadsheetID, readRange(tab), &sheets.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append to sheet %s tab %q: %w", spreadsheetID, tab, err)
	}
	return nil
}

func (p *GoogleSheetsProvider) UpdateCells(ctx context.Context, spreadsheetID string, tab string, rangeA1 string, values [][]string) error {
	ctx, cancel := context.WithTimeout(ctx, sheetsCallTimeout)
	defer cancel()

	svc, err := p.service(ctx)
	if err != nil {
		return err
	}
	cells := make([][]interface{}, len(values))
	for i, row := range values {
		out := make([]interface{}, len(row))
		for j, cell := range row {
			out[j] = cell
		}
		cells[i] = out
	}
	target := rangeA1
	if tab != "" {
		target = fmt.Sprintf("'%s'!%s", tab, rangeA1)
	}
	_, err = svc.Spreadsheets.Values.
		Update(spreadsheetID, target, &sheets.ValueRange{Values: cells}).
		ValueInputOption("USER_ENTERED").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update sheet %s range %q: %w", spreadsheetID, target, err)
	}
	return nil
}

func readRange(tab string) string {
	tab = strings.TrimSpace(tab)
	if tab == "" {
		return "A:Z"
	}
	return fmt.Sprintf("'%s'!A:Z", tab)
}
