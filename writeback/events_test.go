package writeback

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestStayDates_HalfOpenRange(t *testing.T) {
	dates, err := StayDates("2026-09-01", "2026-09-04")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"2026-09-01", "2026-09-02", "2026-09-03"}
	if len(dates) != len(want) {
		t.Fatalf("dates = %v", dates)
	}
	for i := range want {
		if dates[i] != want[i] {
			t.Errorf("dates[%d] = %q, want %q", i, dates[i], want[i])
		}
	}
}

func TestStayDates_SingleNight(t *testing.T) {
	dates, err := StayDates("2026-09-01", "2026-09-02")
	if err != nil {
		t.Fatal(err)
	}
	if len(dates) != 1 || dates[0] != "2026-09-01" {
		t.Errorf("dates = %v", dates)
	}
}

func TestStayDates_RejectsInvertedAndZeroLength(t *testing.T) {
	if _, err := StayDates("2026-09-04", "2026-09-01"); err == nil {
		t.Errorf("inverted range must fail")
	}
	if _, err := StayDates("2026-09-01", "2026-09-01"); err == nil {
		t.Errorf("zero-night stay must fail")
	}
	if _, err := StayDates("01.09.2026", "04.09.2026"); err == nil {
		t.Errorf("non-ISO dates must fail")
	}
}

func TestReservationPayload_Validate(t *testing.T) {
	p := &ReservationPayload{
		ReservationId: "res-1",
		HotelId:       "h1",
		CheckIn:       "2026-09-01",
		CheckOut:      "2026-09-02",
	}
	if err := p.Validate(); err != nil {
		t.Fatal(err)
	}

	missing := *p
	missing.ReservationId = "  "
	if err := missing.Validate(); err == nil {
		t.Errorf("blank reservation_id must fail")
	}

	noHotel := *p
	noHotel.HotelId = ""
	if err := noHotel.Validate(); err == nil {
		t.Errorf("missing hotel_id must fail")
	}
}

func TestBookingPayload_Validate(t *testing.T) {
	p := &BookingPayload{
		BookingId: "bk-1",
		HotelId:   "h1",
		CheckIn:   "2026-09-01",
		CheckOut:  "2026-09-03",
	}
	if err := p.Validate(); err != nil {
		t.Fatal(err)
	}

	p.BookingId = ""
	if err := p.Validate(); err == nil {
		t.Errorf("missing booking_id must fail")
	}
}

func TestSheetRow_Layout(t *testing.T) {
	amount := decimal.NewFromInt(4500)
	p := &ReservationPayload{
		ReservationId: "res-9",
		HotelId:       "h1",
		RoomType:      "suite",
		GuestName:     "Ayşe Yılmaz",
		CheckIn:       "2026-09-01",
		CheckOut:      "2026-09-03",
		TotalAmount:   &amount,
		Currency:      "TRY",
	}

	row := p.SheetRow("reservation_created")
	if len(row) != 9 {
		t.Fatalf("row has %d columns", len(row))
	}
	if row[0] != "reservation_created" || row[1] != "res-9" || row[2] != "suite" {
		t.Errorf("row head = %v", row[:3])
	}
	if row[6] != "1" {
		t.Errorf("zero rooms must render as 1, got %q", row[6])
	}
	if row[7] != "4500 TRY" {
		t.Errorf("amount cell = %q", row[7])
	}
}
