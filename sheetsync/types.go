package sheetsync

import "encoding/json"

// DecodeMapping parses a connection's saved header-to-field mapping. Empty or
// malformed JSON reads as no saved mapping; callers then fall back to
// detection.
func DecodeMapping(raw []byte) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var mapping map[string]string
	if err := json.Unmarshal(raw, &mapping); err != nil {
		return nil
	}
	if len(mapping) == 0 {
		return nil
	}
	return mapping
}

func EncodeMapping(mapping map[string]string) []byte {
	if len(mapping) == 0 {
		return nil
	}
	b, _ := json.Marshal(mapping)
	return b
}

// DecodeRunErrors parses the recorded row errors of a run.
func DecodeRunErrors(raw []byte) []RowError {
	if len(raw) == 0 {
		return nil
	}
	var errs []RowError
	if err := json.Unmarshal(raw, &errs); err != nil {
		return nil
	}
	return errs
}

func EncodeRunErrors(errs []RowError) []byte {
	if len(errs) == 0 {
		return nil
	}
	b, _ := json.Marshal(errs)
	return b
}

// ConnectRequest creates or replaces a hotel's sheet connection.
type ConnectRequest struct {
	HotelId             string            `json:"hotelId" binding:"required"`
	SpreadsheetId       string            `json:"spreadsheetId" binding:"required"`
	TabName             string            `json:"tabName"`
	Mapping             map[string]string `json:"mapping"`
	SyncEnabled         *bool             `json:"syncEnabled"`
	SyncIntervalMinutes int               `json:"syncIntervalMinutes"`
}

// UpdateConnectionRequest patches mutable connection settings.
type UpdateConnectionRequest struct {
	TabName             *string           `json:"tabName"`
	Mapping             map[string]string `json:"mapping"`
	SyncEnabled         *bool             `json:"syncEnabled"`
	SyncIntervalMinutes *int              `json:"syncIntervalMinutes"`
	Status              *string           `json:"status"`
}

// PreviewMappingRequest asks for a detected mapping against live headers.
type PreviewMappingRequest struct {
	SpreadsheetId string `json:"spreadsheetId" binding:"required"`
	TabName       string `json:"tabName"`
}

// ConnectionResponse is the API shape of a connection, with the mapping
// decoded.
type ConnectionResponse struct {
	ID                  uint              `json:"id"`
	HotelId             string            `json:"hotelId"`
	SpreadsheetId       string            `json:"spreadsheetId"`
	TabName             string            `json:"tabName"`
	Mapping             map[string]string `json:"mapping"`
	SyncEnabled         bool              `json:"syncEnabled"`
	SyncIntervalMinutes int               `json:"syncIntervalMinutes"`
	LastSyncAt          *string           `json:"lastSyncAt"`
	LastSyncStatus      string            `json:"lastSyncStatus"`
	LastError           string            `json:"lastError,omitempty"`
	Status              string            `json:"status"`
}

// RunResponse is the API shape of one sync run.
type RunResponse struct {
	ID          uint       `json:"id"`
	HotelId     string     `json:"hotelId"`
	Trigger     string     `json:"trigger"`
	Status      string     `json:"status"`
	RowsRead    int        `json:"rowsRead"`
	RowsChanged int        `json:"rowsChanged"`
	Upserted    int        `json:"upserted"`
	Skipped     int        `json:"skipped"`
	ErrorCount  int        `json:"errorCount"`
	Errors      []RowError `json:"errors,omitempty"`
	ParentRunId *uint      `json:"parentRunId,omitempty"`
	StartedAt   *string    `json:"startedAt"`
	FinishedAt  *string    `json:"finishedAt"`
	DurationMs  int64      `json:"durationMs"`
}

// BulkSyncSummary aggregates one bulk or scheduled sweep.
type BulkSyncSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}
