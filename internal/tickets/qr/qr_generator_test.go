package qr

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-registration/internal/models"
)

var payload = models.TicketPayload{RegistrationID: "r1", Token: "AAAA2222", EventID: "E7", Email: "a@b.co"}

func TestSealAndOpen(t *testing.T) {
	gen, err := NewQRGenerator("secret", 0)
	require.NoError(t, err)

	sealed, err := gen.Seal(payload)
	require.NoError(t, err)
	assert.NotContains(t, sealed, "AAAA2222")

	got, err := gen.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	again, err := gen.Seal(payload)
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again)
}

func TestOpenRejectsForeignOrTamperedPayload(t *testing.T) {
	gen, _ := NewQRGenerator("secret", 0)
	other, _ := NewQRGenerator("other-secret", 0)

	sealed, err := other.Seal(payload)
	require.NoError(t, err)
	_, err = gen.Open(sealed)
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = gen.Open("!!not base64")
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = gen.Open("")
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestGenerateEncryptedQR(t *testing.T) {
	gen, _ := NewQRGenerator("secret", 200)

	pngBytes, err := gen.GenerateEncryptedQR(payload)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(pngBytes))
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())
}
