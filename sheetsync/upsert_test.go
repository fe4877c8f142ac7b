package sheetsync

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
)

func TestUpsertRows_DatedRowWithDefaults(t *testing.T) {
	store := newFakeStore()
	rows := []MappedRow{
		{RowNumber: 2, Fields: map[string]string{
			FieldDate:      "2026-09-01",
			FieldPrice:     "1.500,50",
			FieldAllotment: "10",
			FieldStopSale:  "evet",
		}},
	}

	result, err := UpsertRows(context.Background(), store, "t1", "h1", rows)
	if err != nil {
		t.Fatal(err)
	}
	if result.Upserted != 1 || result.Failed != 0 {
		t.Fatalf("upserted=%d failed=%d", result.Upserted, result.Failed)
	}

	rec := store.inventory["t1|h1|2026-09-01|"+DefaultRoomType]
	if rec == nil {
		t.Fatalf("dated row without room type must default to %q", DefaultRoomType)
	}
	if rec.Price == nil || rec.Price.String() != "1500.5" {
		t.Errorf("price = %v", rec.Price)
	}
	if rec.Allotment == nil || *rec.Allotment != 10 {
		t.Errorf("allotment = %v", rec.Allotment)
	}
	if rec.StopSale == nil || !*rec.StopSale {
		t.Errorf("stop sale = %v", rec.StopSale)
	}
	if rec.Source != SourceLabel {
		t.Errorf("source = %q", rec.Source)
	}
}

func TestUpsertRows_MalformedFieldOmittedNotFatal(t *testing.T) {
	store := newFakeStore()
	rows := []MappedRow{
		{RowNumber: 2, Fields: map[string]string{
			FieldDate:      "2026-09-01",
			FieldPrice:     "not-a-price",
			FieldAllotment: "8",
		}},
	}

	result, err := UpsertRows(context.Background(), store, "t1", "h1", rows)
	if err != nil {
		t.Fatal(err)
	}
	if result.Failed != 0 {
		t.Fatalf("malformed field must not fail the row: %+v", result.Errors)
	}

	rec := store.inventory["t1|h1|2026-09-01|"+DefaultRoomType]
	if rec == nil {
		t.Fatal("row should still be written")
	}
	if rec.Price != nil {
		t.Errorf("malformed price must be omitted, got %v", rec.Price)
	}
	if rec.Allotment == nil || *rec.Allotment != 8 {
		t.Errorf("valid allotment must survive, got %v", rec.Allotment)
	}
}

func TestUpsertRows_HotelLevelRow(t *testing.T) {
	store := newFakeStore()
	rows := []MappedRow{
		{RowNumber: 2, Fields: map[string]string{
			FieldPrice:     "900",
			FieldHotelName: "Grand Ankara",
			FieldCity:      "Ankara",
			FieldStars:     "5",
		}},
	}

	if _, err := UpsertRows(context.Background(), store, "t1", "h1", rows); err != nil {
		t.Fatal(err)
	}

	if store.inventory["t1|h1||"] == nil {
		t.Errorf("dateless row must write the hotel-level record")
	}
	profile := store.profiles["t1|h1"]
	if profile["name"] != "Grand Ankara" || profile["city"] != "Ankara" {
		t.Errorf("profile patch = %v", profile)
	}
	if profile["stars"] != 5 {
		t.Errorf("stars = %v", profile["stars"])
	}
	bp, ok := profile["base_price"].(decimal.Decimal)
	if !ok || bp.String() != "900" {
		t.Errorf("base price = %v", profile["base_price"])
	}
}

func TestUpsertRows_DatedPriceIsNotBasePrice(t *testing.T) {
	store := newFakeStore()
	rows := []MappedRow{
		{RowNumber: 2, Fields: map[string]string{
			FieldDate:      "2026-09-01",
			FieldPrice:     "1500",
			FieldHotelName: "Grand Ankara",
		}},
	}

	if _, err := UpsertRows(context.Background(), store, "t1", "h1", rows); err != nil {
		t.Fatal(err)
	}
	if _, ok := store.profiles["t1|h1"]["base_price"]; ok {
		t.Errorf("a nightly rate must not overwrite the hotel's base price")
	}
}

func TestUpsertRows_FailedRowIsolatedAndNotFingerprinted(t *testing.T) {
	store := newFakeStore()
	store.failUpsertDates["2026-09-02"] = true
	rows := []MappedRow{
		{RowNumber: 2, Fields: map[string]string{FieldDate: "2026-09-01", FieldPrice: "100"}},
		{RowNumber: 3, Fields: map[string]string{FieldDate: "2026-09-02", FieldPrice: "200"}},
		{RowNumber: 4, Fields: map[string]string{FieldDate: "2026-09-03", FieldPrice: "300"}},
	}

	result, err := UpsertRows(context.Background(), store, "t1", "h1", rows)
	if err != nil {
		t.Fatal(err)
	}
	if result.Upserted != 2 || result.Failed != 1 {
		t.Fatalf("upserted=%d failed=%d, want 2/1", result.Upserted, result.Failed)
	}
	if len(result.Errors) != 1 || result.Errors[0].RowNumber != 3 {
		t.Fatalf("errors = %+v", result.Errors)
	}

	// Only the two successful rows advance their fingerprints; the failed one
	// must stay "changed" for the next run.
	for _, key := range store.fpSavedRowKeys {
		if key == RowKey("h1", 3) {
			t.Errorf("failed row must not save a fingerprint")
		}
	}
	if store.fpSaves != 2 {
		t.Errorf("fingerprint saves = %d, want 2", store.fpSaves)
	}
}

func TestUpsertRows_EmptyProfileValuesDoNotOverwrite(t *testing.T) {
	store := newFakeStore()
	rows := []MappedRow{
		{RowNumber: 2, Fields: map[string]string{
			FieldDate:      "2026-09-01",
			FieldPrice:     "100",
			FieldHotelName: "",
		}},
	}

	if _, err := UpsertRows(context.Background(), store, "t1", "h1", rows); err != nil {
		t.Fatal(err)
	}
	if _, ok := store.profiles["t1|h1"]; ok {
		t.Errorf("empty descriptive cells must not touch the profile")
	}
}
