package sheetsync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSXProvider serves workbooks dropped into a shared directory, for agencies
// that exchange .xlsx files instead of live sheets. The spreadsheet id is the
// file name (without directory) inside BaseDir.
type XLSXProvider struct {
	BaseDir string
}

func NewXLSXProvider(baseDir string) *XLSXProvider {
	return &XLSXProvider{BaseDir: baseDir}
}

func (p *XLSXProvider) IsConfigured() bool {
	if strings.TrimSpace(p.BaseDir) == "" {
		return false
	}
	info, err := os.Stat(p.BaseDir)
	return err == nil && info.IsDir()
}

// path resolves the spreadsheet id inside BaseDir and rejects traversal.
func (p *XLSXProvider) path(spreadsheetID string) (string, error) {
	name := filepath.Base(strings.TrimSpace(spreadsheetID))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "", fmt.Errorf("invalid workbook id %q", spreadsheetID)
	}
	return filepath.Join(p.BaseDir, name), nil
}

func (p *XLSXProvider) GetMetadata(ctx context.Context, spreadsheetID string) (*SheetMetadata, error) {
	path, err := p.path(spreadsheetID)
	if err != nil {
		return nil, err
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", spreadsheetID, err)
	}
	defer f.Close()

	return &SheetMetadata{
		Title:      strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Worksheets: f.GetSheetList(),
	}, nil
}

func (p *XLSXProvider) Read(ctx context.Context, spreadsheetID string, tab string) (*SheetData, error) {
	path, err := p.path(spreadsheetID)
	if err != nil {
		return nil, err
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", spreadsheetID, err)
	}
	defer f.Close()

	sheetName := strings.TrimSpace(tab)
	if sheetName == "" {
		list := f.GetSheetList()
		if len(list) == 0 {
			return &SheetData{}, nil
		}
		sheetName = list[0]
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("read worksheet %q: %w", sheetName, err)
	}

	data := &SheetData{}
	for i, row := range rows {
		if i == 0 {
			data.Headers = row
			continue
		}
		data.Rows = append(data.Rows, row)
	}
	return data, nil
}

// GetFingerprint hashes the workbook file bytes. Any edit rewrites the file,
// so an unchanged hash means unchanged content without parsing the workbook.
func (p *XLSXProvider) GetFingerprint(ctx context.Context, spreadsheetID string, tab string) (string, error) {
	path, err := p.path(spreadsheetID)
	if err != nil {
		return "", err
	}
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open workbook %s: %w", spreadsheetID, err)
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", err
	}
	// Tab is part of the identity: two connections can point at different
	// worksheets of the same file.
	h.Write([]byte{0x1e})
	h.Write([]byte(strings.TrimSpace(tab)))
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (p *XLSXProvider) AppendRows(ctx context.Context, spreadsheetID string, tab string, rows [][]string) error {
	path, err := p.path(spreadsheetID)
	if err != nil {
		return err
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return fmt.Errorf("open workbook %s: %w", spreadsheetID, err)
	}
	defer f.Close()

	sheetName := strings.TrimSpace(tab)
	if sheetName == "" {
		list := f.GetSheetList()
		if len(list) == 0 {
			return fmt.Errorf("workbook %s has no worksheets", spreadsheetID)
		}
		sheetName = list[0]
	}

	existing, err := f.GetRows(sheetName)
	if err != nil {
		return fmt.Errorf("read worksheet %q: %w", sheetName, err)
	}
	next := len(existing) + 1
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, next+i)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("append row %d: %w", next+i, err)
		}
	}
	return f.Save()
}

func (p *XLSXProvider) UpdateCells(ctx context.Context, spreadsheetID string, tab string, rangeA1 string, values [][]string) error {
	path, err := p.path(spreadsheetID)
	if err != nil {
		return err
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return fmt.Errorf("open workbook %s: %w", spreadsheetID, err)
	}
	defer f.Close()

	sheetName := strings.TrimSpace(tab)
	if sheetName == "" {
		list := f.GetSheetList()
		if len(list) == 0 {
			return fmt.Errorf("workbook %s has no worksheets", spreadsheetID)
		}
		sheetName = list[0]
	}

	startCol, startRow, err := excelize.CellNameToCoordinates(strings.Split(rangeA1, ":")[0])
	if err != nil {
		return fmt.Errorf("parse range %q: %w", rangeA1, err)
	}
	for i, row := range values {
		for j, v := range row {
			cell, err := excelize.CoordinatesToCellName(startCol+j, startRow+i)
			if err != nil {
				return err
			}
			if err := f.SetCellStr(sheetName, cell, v); err != nil {
				return fmt.Errorf("set cell %s: %w", cell, err)
			}
		}
	}
	return f.Save()
}
