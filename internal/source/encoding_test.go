package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeCellRoundTripsLatin1Bytes(t *testing.T) {
	encoded, err := EncodeCell("Café")
	assert.NoError(t, err)

	decoded, err := DecodeCell(encoded)
	assert.NoError(t, err)
	assert.Equal(t, "Café", decoded)
}

func TestDecodeCellHandlesEuroSign(t *testing.T) {
	// 0x80 is the Euro sign in windows-1252, one of the code points that
	// diverges from plain Latin-1 and is the reason the encoding must be
	// picked deliberately rather than assumed.
	decoded, err := DecodeCell([]byte{0x80})
	assert.NoError(t, err)
	assert.Equal(t, "€", decoded)
}
