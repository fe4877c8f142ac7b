package sheetsync

import (
	"context"
	"fmt"

	"bitbucket.org/gezisoft/agency_backend/models"
)

// SourceLabel marks records written by the sync engine so manual edits stay
// distinguishable.
const SourceLabel = "sheet_sync"

// DefaultRoomType is assumed when a dated row carries no room type column.
const DefaultRoomType = "standard"

// RowError captures a single failed row for the run audit record.
type RowError struct {
	RowNumber int    `json:"row_number"`
	Message   string `json:"message"`
}

// UpsertResult aggregates one batch of changed rows. Failed counts every
// failed row; Errors records only the first few for the audit trail.
type UpsertResult struct {
	Upserted int
	Failed   int
	Errors   []RowError
}

// maxRecordedErrors caps ErrorsJSON; the run still counts every failure.
const maxRecordedErrors = 20

// UpsertRows writes the changed rows into inventory and the hotel profile.
// Rows are independent: one failed row is recorded and skipped, the rest
// proceed. A row's fingerprint is only saved after its own write succeeded,
// so a failed row stays "changed" for the next run.
//
// Field values are parse-or-omit: a malformed price, allotment or stop-sale
// cell drops that field from the write, never the row.
func UpsertRows(ctx context.Context, store Store, tenantID, hotelID string, rows []MappedRow) (*UpsertResult, error) {
	result := &UpsertResult{}
	for _, row := range rows {
		if err := upsertRow(ctx, store, tenantID, hotelID, row); err != nil {
			result.Failed++
			if len(result.Errors) < maxRecordedErrors {
				result.Errors = append(result.Errors, RowError{
					RowNumber: row.RowNumber,
					Message:   err.Error(),
				})
			}
			continue
		}

		key := RowKey(hotelID, row.RowNumber)
		if err := store.SaveRowFingerprint(ctx, tenantID, hotelID, key, RowFingerprint(row.Fields)); err != nil {
			return nil, fmt.Errorf("save fingerprint for row %d: %w", row.RowNumber, err)
		}
		result.Upserted++
	}
	return result, nil
}

func upsertRow(ctx context.Context, store Store, tenantID, hotelID string, row MappedRow) error {
	inv := buildInventory(tenantID, hotelID, row)
	if inv != nil {
		if err := store.UpsertInventory(ctx, inv); err != nil {
			return fmt.Errorf("upsert inventory: %w", err)
		}
	}

	profile := buildProfilePatch(row)
	if len(profile) > 0 {
		if err := store.UpdateHotelProfile(ctx, tenantID, hotelID, profile); err != nil {
			return fmt.Errorf("update hotel profile: %w", err)
		}
	}
	return nil
}

// buildInventory assembles the inventory record for a row, or nil when the
// row carries no inventory fields at all. Dated rows key on (date, room type);
// rows without a date write the hotel-level record (empty date and room type).
func buildInventory(tenantID, hotelID string, row MappedRow) *models.HotelInventory {
	rec := &models.HotelInventory{
		TenantId: tenantID,
		HotelId:  hotelID,
		Source:   SourceLabel,
	}

	hasField := false
	if raw, ok := row.Fields[FieldPrice]; ok {
		if d, ok := ParseDecimal(raw); ok {
			rec.Price = &d
			hasField = true
		}
	}
	if raw, ok := row.Fields[FieldAllotment]; ok {
		if n, ok := ParseInt(raw); ok {
			if n < 0 {
				n = 0
			}
			rec.Allotment = &n
			hasField = true
		}
	}
	if raw, ok := row.Fields[FieldStopSale]; ok {
		if v, ok := ParseStopSale(raw); ok {
			rec.StopSale = &v
			hasField = true
		}
	}
	if !hasField {
		return nil
	}

	if date, ok := row.Fields[FieldDate]; ok && date != "" {
		rec.Date = date
		rec.RoomType = DefaultRoomType
		if rt, ok := row.Fields[FieldRoomType]; ok && rt != "" {
			rec.RoomType = rt
		}
	}
	return rec
}

// buildProfilePatch collects the descriptive columns of a row into a hotel
// profile update. Empty cells never overwrite existing profile values.
func buildProfilePatch(row MappedRow) map[string]interface{} {
	patch := make(map[string]interface{})
	set := func(field, column string) {
		if v, ok := row.Fields[field]; ok && v != "" {
			patch[column] = v
		}
	}
	set(FieldHotelName, "name")
	set(FieldCity, "city")
	set(FieldCountry, "country")
	set(FieldDescription, "description")
	set(FieldPhone, "phone")
	set(FieldEmail, "email")
	set(FieldAddress, "address")
	set(FieldImageUrl, "image_url")
	if raw, ok := row.Fields[FieldStars]; ok {
		if n, ok := ParseInt(raw); ok && n >= 0 {
			patch["stars"] = n
		}
	}
	// A price on a dateless row is the hotel's base price, not a nightly rate.
	if row.Fields[FieldDate] == "" {
		if raw, ok := row.Fields[FieldPrice]; ok {
			if d, ok := ParseDecimal(raw); ok {
				patch["base_price"] = d
			}
		}
	}
	return patch
}
