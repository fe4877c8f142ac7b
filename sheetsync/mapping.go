package sheetsync

import "strings"

// Canonical field names a sheet column can map to.
const (
	FieldDate        = "date"
	FieldRoomType    = "room_type"
	FieldPrice       = "price"
	FieldAllotment   = "allotment"
	FieldStopSale    = "stop_sale"
	FieldHotelName   = "hotel_name"
	FieldCity        = "city"
	FieldCountry     = "country"
	FieldDescription = "description"
	FieldStars       = "stars"
	FieldPhone       = "phone"
	FieldEmail       = "email"
	FieldAddress     = "address"
	FieldImageUrl    = "image_url"
)

// MappingTargetIgnore in a saved mapping drops the column entirely.
const MappingTargetIgnore = "ignore"

// canonicalFields fixes the detection order; earlier fields get first pick of
// the headers.
var canonicalFields = []string{
	FieldDate, FieldRoomType, FieldPrice, FieldAllotment, FieldStopSale,
	FieldHotelName, FieldCity, FieldCountry, FieldDescription, FieldStars,
	FieldPhone, FieldEmail, FieldAddress, FieldImageUrl,
}

// fieldAliases lists the normalized header spellings (Turkish agency sheets
// plus English) accepted for each canonical field.
var fieldAliases = map[string][]string{
	FieldDate:        {"tarih", "date", "gun", "day"},
	FieldRoomType:    {"oda_tipi", "oda_turu", "room_type", "room"},
	FieldPrice:       {"fiyat", "price", "ucret", "tutar", "rate"},
	FieldAllotment:   {"kontenjan", "stok", "allotment", "availability", "musaitlik"},
	FieldStopSale:    {"stop_sale", "satisa_kapali", "stop", "kapali"},
	FieldHotelName:   {"otel_adi", "hotel_name", "otel", "hotel"},
	FieldCity:        {"sehir", "city"},
	FieldCountry:     {"ulke", "country"},
	FieldDescription: {"aciklama", "description", "detay"},
	FieldStars:       {"yildiz", "stars", "star"},
	FieldPhone:       {"telefon", "phone"},
	FieldEmail:       {"email", "eposta", "e_posta", "mail"},
	FieldAddress:     {"adres", "address"},
	FieldImageUrl:    {"resim_url", "image_url", "resim", "image", "gorsel"},
}

// MappedRow is one logical sheet row reduced to its mapped canonical fields.
// RowNumber is 1-based within the sheet (row 1 is the header, data starts
// at 2) and is bookkeeping only: it never participates in fingerprints.
type MappedRow struct {
	RowNumber int               `json:"rowNumber"`
	Fields    map[string]string `json:"fields"`
}

func normalizeHeader(header string) string {
	h := strings.ToLower(strings.TrimSpace(header))
	return strings.ReplaceAll(h, " ", "_")
}

// DetectMapping guesses a header-to-canonical-field mapping from raw sheet
// headers. Best-effort: a connection's explicit saved mapping always takes
// precedence. For each canonical field the first header (in sheet order)
// whose normalized form equals, or contains, one of the field's aliases wins;
// a header is assigned to at most one field.
func DetectMapping(headers []string) map[string]string {
	mapping := make(map[string]string)
	assigned := make(map[int]bool)

	for _, field := range canonicalFields {
		aliases := fieldAliases[field]
		for idx, header := range headers {
			if assigned[idx] {
				continue
			}
			normalized := normalizeHeader(header)
			if normalized == "" {
				continue
			}
			if headerMatches(normalized, aliases) {
				mapping[header] = field
				assigned[idx] = true
				break
			}
		}
	}
	return mapping
}

func headerMatches(normalized string, aliases []string) bool {
	for _, alias := range aliases {
		if normalized == alias {
			return true
		}
	}
	for _, alias := range aliases {
		if strings.Contains(normalized, alias) {
			return true
		}
	}
	return false
}

// ApplyMapping projects raw rows onto their mapped canonical fields. Values
// are trimmed strings; cells beyond a short row read as empty. Headers mapped
// to "ignore" (or not mapped at all) are dropped. Row numbers start at 2 to
// account for the header row.
func ApplyMapping(headers []string, rows [][]string, mapping map[string]string) []MappedRow {
	out := make([]MappedRow, 0, len(rows))
	for i, raw := range rows {
		fields := make(map[string]string)
		for col, header := range headers {
			target, ok := mapping[header]
			if !ok || target == "" || target == MappingTargetIgnore {
				continue
			}
			value := ""
			if col < len(raw) {
				value = strings.TrimSpace(raw[col])
			}
			fields[target] = value
		}
		out = append(out, MappedRow{
			RowNumber: i + 2,
			Fields:    fields,
		})
	}
	return out
}
