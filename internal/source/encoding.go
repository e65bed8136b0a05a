package source

import (
	"fmt"

	"golang.org/x/text/encoding/charmap"

	"github.com/ntchinda/posync/internal/errs"
)

// substitutionMarker replaces a cell that the fixed encoding cannot
// round-trip, so a bad byte never aborts the row it belongs to.
const substitutionMarker = "�"

// DecodeCell converts raw source bytes to a string under the single fixed
// encoding posync uses end to end (windows-1252, chosen because it
// round-trips the single-byte Windows code points the source system
// actually stores without loss). A cell that fails to decode becomes the
// substitution marker, and the error is returned alongside it so the
// caller can record an EncodingError without losing the row. The bytes
// windows-1252 leaves unassigned (0x81, 0x8D, 0x8F, 0x90, 0x9D) are checked
// for explicitly, since the charmap decoder does not report them as errors.
func DecodeCell(raw []byte) (string, error) {
	for _, b := range raw {
		switch b {
		case 0x81, 0x8D, 0x8F, 0x90, 0x9D:
			return substitutionMarker, &errs.EncodingError{Cell: string(raw), Err: fmt.Errorf("byte 0x%02X is unassigned in windows-1252", b)}
		}
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return substitutionMarker, &errs.EncodingError{Cell: string(raw), Err: err}
	}
	return string(decoded), nil
}

// EncodeCell converts a string back to windows-1252 bytes, the inverse of
// DecodeCell.
func EncodeCell(s string) ([]byte, error) {
	return charmap.Windows1252.NewEncoder().Bytes([]byte(s))
}
