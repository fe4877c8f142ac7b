package sheetsync

import "testing"

func TestRowFingerprint_StableAcrossAssemblyOrder(t *testing.T) {
	a := map[string]string{"date": "2026-09-01", "price": "1500", "allotment": "10"}
	b := map[string]string{"allotment": "10", "date": "2026-09-01", "price": "1500"}

	if RowFingerprint(a) != RowFingerprint(b) {
		t.Errorf("equal content must hash equally regardless of insertion order")
	}
}

func TestRowFingerprint_ChangesWithContent(t *testing.T) {
	a := map[string]string{"date": "2026-09-01", "price": "1500"}
	b := map[string]string{"date": "2026-09-01", "price": "1501"}

	if RowFingerprint(a) == RowFingerprint(b) {
		t.Errorf("different content must hash differently")
	}
}

func TestRowFingerprint_UTF8(t *testing.T) {
	a := map[string]string{"hotel_name": "Ağaoğlu Otel", "city": "İstanbul"}
	b := map[string]string{"hotel_name": "Ağaoğlu Otel", "city": "İstanbul"}

	if RowFingerprint(a) != RowFingerprint(b) {
		t.Errorf("UTF-8 content must hash deterministically")
	}
}

func TestRowKey_Format(t *testing.T) {
	if got := RowKey("hotel-7", 12); got != "hotel-7|row|12" {
		t.Errorf("RowKey = %q", got)
	}
}

func TestSheetFingerprint_CellShiftsDoNotCollide(t *testing.T) {
	a := SheetFingerprint([]string{"ab", "c"}, nil)
	b := SheetFingerprint([]string{"a", "bc"}, nil)
	if a == b {
		t.Errorf("cell boundary shift must change the fingerprint")
	}

	c := SheetFingerprint([]string{"h"}, [][]string{{"x", "y"}, {"z"}})
	d := SheetFingerprint([]string{"h"}, [][]string{{"x"}, {"y", "z"}})
	if c == d {
		t.Errorf("row boundary shift must change the fingerprint")
	}
}
