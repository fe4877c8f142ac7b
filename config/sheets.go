package config

import (
	"context"
	"os"
	"strings"
	"sync"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

var (
	sheetsService   *sheets.Service
	sheetsServiceMu sync.Mutex
)

// SheetsConfigured reports whether Google Sheets credentials are available.
// Unconfigured is a normal state for partially-onboarded tenants and
// non-production environments; callers must treat it as a terminal
// "not_configured" outcome, not an error.
func SheetsConfigured() bool {
	if strings.TrimSpace(os.Getenv("SHEETS_CREDENTIALS_JSON")) != "" {
		return true
	}
	return strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")) != ""
}

// GetSheetsService returns a shared Sheets API client.
func GetSheetsService(ctx context.Context) (*sheets.Service, error) {
	sheetsServiceMu.Lock()
	defer sheetsServiceMu.Unlock()

	if sheetsService != nil {
		return sheetsService, nil
	}

	credJSON := strings.TrimSpace(os.Getenv("SHEETS_CREDENTIALS_JSON"))

	var (
		svc *sheets.Service
		err error
	)
	if credJSON != "" {
		svc, err = sheets.NewService(ctx, option.WithCredentialsJSON([]byte(credJSON)))
	} else {
		// Application Default Credentials.
		svc, err = sheets.NewService(ctx)
	}
	if err != nil {
		return nil, err
	}
	sheetsService = svc
	return sheetsService, nil
}
