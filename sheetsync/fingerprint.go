package sheetsync

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// RowFingerprint hashes the mapped field values of one row. The JSON encoding
// sorts map keys, so equal content always hashes equally regardless of how
// the fields were assembled; UTF-8 text is preserved as-is.
func RowFingerprint(fields map[string]string) string {
	encoded, _ := json.Marshal(fields)
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}

// RowKey is the positional identity of a row within a connection. Reordering
// rows upstream therefore reads as content changes at every shifted position;
// accepted limitation of positional identity.
func RowKey(hotelID string, rowNumber int) string {
	return fmt.Sprintf("%s|row|%d", hotelID, rowNumber)
}

// SheetFingerprint hashes an entire sheet (headers + raw cells) with cell and
// row separators so shifts cannot collide. Used by providers that have no
// server-side change marker.
func SheetFingerprint(headers []string, rows [][]string) string {
	h := sha256.New()
	for _, cell := range headers {
		h.Write([]byte(cell))
		h.Write([]byte{0x1f})
	}
	h.Write([]byte{0x1e})
	for _, row := range rows {
		for _, cell := range row {
			h.Write([]byte(cell))
			h.Write([]byte{0x1f})
		}
		h.Write([]byte{0x1e})
	}
	return hex.EncodeToString(h.Sum(nil))
}
