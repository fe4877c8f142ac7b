package writeback

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/gezisoft/agency_backend/models"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// ReservationPayload is the body of reservation_created and
// reservation_cancelled jobs. CheckIn/CheckOut are half-open: the guest
// occupies every night from check-in up to but not including check-out.
type ReservationPayload struct {
	ReservationId string           `json:"reservation_id"`
	HotelId       string           `json:"hotel_id"`
	RoomType      string           `json:"room_type"`
	GuestName     string           `json:"guest_name"`
	CheckIn       string           `json:"check_in"`
	CheckOut      string           `json:"check_out"`
	Rooms         int              `json:"rooms"`
	TotalAmount   *decimal.Decimal `json:"total_amount,omitempty"`
	Currency      string           `json:"currency,omitempty"`
}

// BookingPayload is the body of booking_confirmed, booking_cancelled and
// booking_amended jobs.
type BookingPayload struct {
	BookingId   string           `json:"booking_id"`
	HotelId     string           `json:"hotel_id"`
	RoomType    string           `json:"room_type"`
	GuestName   string           `json:"guest_name"`
	CheckIn     string           `json:"check_in"`
	CheckOut    string           `json:"check_out"`
	Rooms       int              `json:"rooms"`
	TotalAmount *decimal.Decimal `json:"total_amount,omitempty"`
	Currency    string           `json:"currency,omitempty"`
	Note        string           `json:"note,omitempty"`
}

func (p *ReservationPayload) Validate() error {
	if strings.TrimSpace(p.ReservationId) == "" {
		return fmt.Errorf("reservation_id is required")
	}
	if strings.TrimSpace(p.HotelId) == "" {
		return fmt.Errorf("hotel_id is required")
	}
	if _, _, err := parseStayRange(p.CheckIn, p.CheckOut); err != nil {
		return err
	}
	return nil
}

func (p *BookingPayload) Validate() error {
	if strings.TrimSpace(p.BookingId) == "" {
		return fmt.Errorf("booking_id is required")
	}
	if strings.TrimSpace(p.HotelId) == "" {
		return fmt.Errorf("hotel_id is required")
	}
	if _, _, err := parseStayRange(p.CheckIn, p.CheckOut); err != nil {
		return err
	}
	return nil
}

func parseStayRange(checkIn, checkOut string) (time.Time, time.Time, error) {
	in, err := time.Parse(dateLayout, strings.TrimSpace(checkIn))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid check_in %q", checkIn)
	}
	out, err := time.Parse(dateLayout, strings.TrimSpace(checkOut))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid check_out %q", checkOut)
	}
	if !out.After(in) {
		return time.Time{}, time.Time{}, fmt.Errorf("check_out %q must be after check_in %q", checkOut, checkIn)
	}
	return in, out, nil
}

// StayDates lists the occupied nights of a half-open [checkIn, checkOut)
// range as YYYY-MM-DD strings. The check-out date itself is not occupied.
func StayDates(checkIn, checkOut string) ([]string, error) {
	in, out, err := parseStayRange(checkIn, checkOut)
	if err != nil {
		return nil, err
	}
	var dates []string
	for d := in; d.Before(out); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(dateLayout))
	}
	return dates, nil
}

// sheetRow renders the event as one appended sheet row. Column layout is
// fixed: event, source id, room type, guest, check-in, check-out, rooms,
// amount, recorded-at.
func sheetRow(eventType, sourceId, roomType, guest, checkIn, checkOut string, rooms int, amount *decimal.Decimal, currency string) []string {
	amountCell := ""
	if amount != nil {
		amountCell = amount.String()
		if currency != "" {
			amountCell += " " + currency
		}
	}
	return []string{
		eventType,
		sourceId,
		roomType,
		guest,
		checkIn,
		checkOut,
		fmt.Sprintf("%d", rooms),
		amountCell,
		time.Now().UTC().Format(time.RFC3339),
	}
}

func (p *ReservationPayload) SheetRow(eventType string) []string {
	return sheetRow(eventType, p.ReservationId, p.RoomType, p.GuestName, p.CheckIn, p.CheckOut, p.roomCount(), p.TotalAmount, p.Currency)
}

func (p *BookingPayload) SheetRow(eventType string) []string {
	rooms := p.Rooms
	if rooms <= 0 {
		rooms = 1
	}
	return sheetRow(eventType, p.BookingId, p.RoomType, p.GuestName, p.CheckIn, p.CheckOut, rooms, p.TotalAmount, p.Currency)
}

func (p *ReservationPayload) roomCount() int {
	if p.Rooms <= 0 {
		return 1
	}
	return p.Rooms
}

func isReservationEvent(eventType string) bool {
	return eventType == models.WritebackEventReservationCreated ||
		eventType == models.WritebackEventReservationCancelled
}

func isBookingEvent(eventType string) bool {
	switch eventType {
	case models.WritebackEventBookingConfirmed,
		models.WritebackEventBookingCancelled,
		models.WritebackEventBookingAmended:
		return true
	}
	return false
}

func decodeReservation(raw []byte) (*ReservationPayload, error) {
	var p ReservationPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode reservation payload: %w", err)
	}
	return &p, nil
}

func decodeBooking(raw []byte) (*BookingPayload, error) {
	var p BookingPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode booking payload: %w", err)
	}
	return &p, nil
}
