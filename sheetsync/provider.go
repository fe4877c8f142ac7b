package sheetsync

import (
	"context"
	"errors"
)

// ErrFingerprintUnsupported is returned by providers that cannot produce a
// cheap sheet-level fingerprint. The orchestrator then falls back to a full
// row-by-row diff.
var ErrFingerprintUnsupported = errors.New("sheet fingerprint not supported")

type SheetMetadata struct {
	Title      string   `json:"title"`
	Worksheets []string `json:"worksheets"`
}

type SheetData struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// Provider is a row-oriented remote spreadsheet. Implementations must bound
// their own call timeouts well under the sync lock TTL, so a hanging remote
// call cannot outlive the lock and overlap a reclaiming worker.
type Provider interface {
	IsConfigured() bool
	GetMetadata(ctx context.Context, spreadsheetID string) (*SheetMetadata, error)
	Read(ctx context.Context, spreadsheetID string, tab string) (*SheetData, error)
	GetFingerprint(ctx context.Context, spreadsheetID string, tab string) (string, error)
	AppendRows(ctx context.Context, spreadsheetID string, tab string, rows [][]string) error
	// UpdateCells is reserved for direct cell-patch write-back; the queue
	// dispatcher only appends today.
	UpdateCells(ctx context.Context, spreadsheetID string, tab string, rangeA1 string, values [][]string) error
}
