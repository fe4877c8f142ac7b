package sheetsync

import "context"

// ComputeDelta filters mapped rows down to those whose content fingerprint
// differs from the stored one. Unchanged rows are counted and dropped; their
// stored fingerprint is left untouched, so no write happens for them at all.
// The new fingerprint for a changed row is persisted later, only after its
// upsert succeeds.
func ComputeDelta(ctx context.Context, store Store, tenantID, hotelID string, rows []MappedRow) (changed []MappedRow, skipped int, err error) {
	changed = make([]MappedRow, 0, len(rows))
	for _, row := range rows {
		key := RowKey(hotelID, row.RowNumber)
		current := RowFingerprint(row.Fields)

		stored, found, err := store.GetRowFingerprint(ctx, tenantID, hotelID, key)
		if err != nil {
			return nil, 0, err
		}
		if found && stored == current {
			skipped++
			continue
		}
		changed = append(changed, row)
	}
	return changed, skipped, nil
}
