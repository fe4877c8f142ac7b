package sheetsync

import (
	"context"
	"testing"
)

func TestComputeDelta_FirstSyncAllChanged(t *testing.T) {
	store := newFakeStore()
	rows := []MappedRow{
		{RowNumber: 2, Fields: map[string]string{"date": "2026-09-01", "price": "1500"}},
		{RowNumber: 3, Fields: map[string]string{"date": "2026-09-02", "price": "1600"}},
	}

	changed, skipped, err := ComputeDelta(context.Background(), store, "t1", "h1", rows)
	if err != nil {
		t.Fatal(err)
	}
	if len(changed) != 2 || skipped != 0 {
		t.Errorf("changed=%d skipped=%d, want 2/0", len(changed), skipped)
	}
}

func TestComputeDelta_UnchangedRowsSkippedWithoutWrites(t *testing.T) {
	store := newFakeStore()
	row := MappedRow{RowNumber: 2, Fields: map[string]string{"date": "2026-09-01", "price": "1500"}}
	store.fingerprints[fpKey("t1", "h1", RowKey("h1", 2))] = RowFingerprint(row.Fields)

	changed, skipped, err := ComputeDelta(context.Background(), store, "t1", "h1", []MappedRow{row})
	if err != nil {
		t.Fatal(err)
	}
	if len(changed) != 0 || skipped != 1 {
		t.Errorf("changed=%d skipped=%d, want 0/1", len(changed), skipped)
	}
	if store.fpSaves != 0 {
		t.Errorf("unchanged row must not rewrite its fingerprint, saw %d writes", store.fpSaves)
	}
}

func TestComputeDelta_LookupFailureAborts(t *testing.T) {
	store := newFakeStore()
	store.failGetFp = true
	rows := []MappedRow{{RowNumber: 2, Fields: map[string]string{"date": "2026-09-01"}}}

	if _, _, err := ComputeDelta(context.Background(), store, "t1", "h1", rows); err == nil {
		t.Errorf("a failed fingerprint lookup must abort the delta pass")
	}
}

func TestComputeDelta_ChangedRowDetected(t *testing.T) {
	store := newFakeStore()
	old := map[string]string{"date": "2026-09-01", "price": "1500"}
	store.fingerprints[fpKey("t1", "h1", RowKey("h1", 2))] = RowFingerprint(old)

	updated := MappedRow{RowNumber: 2, Fields: map[string]string{"date": "2026-09-01", "price": "1750"}}
	changed, skipped, err := ComputeDelta(context.Background(), store, "t1", "h1", []MappedRow{updated})
	if err != nil {
		t.Fatal(err)
	}
	if len(changed) != 1 || skipped != 0 {
		t.Errorf("changed=%d skipped=%d, want 1/0", len(changed), skipped)
	}
}
