// Package qr seals ticket payloads and renders them as QR codes.
package qr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"

	"github.com/skip2/go-qrcode"

	"ms-registration/internal/models"
)

var ErrInvalidPayload = errors.New("invalid ticket payload")

type QRGenerator struct {
	aead cipher.AEAD
	size int
}

func NewQRGenerator(secret string, size int) (*QRGenerator, error) {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	block, err := aes.NewCipher(hashed[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = 256
	}
	return &QRGenerator{aead: aead, size: size}, nil
}

// Seal encrypts the payload into a URL-safe string. A scanner without the
// secret can neither read nor forge it.
func (q *QRGenerator) Seal(payload models.TicketPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, q.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := q.aead.Seal(nonce, nonce, data, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (q *QRGenerator) Open(sealed string) (models.TicketPayload, error) {
	var payload models.TicketPayload
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil || len(raw) < q.aead.NonceSize() {
		return payload, ErrInvalidPayload
	}
	nonce, ciphertext := raw[:q.aead.NonceSize()], raw[q.aead.NonceSize():]
	data, err := q.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return payload, ErrInvalidPayload
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, ErrInvalidPayload
	}
	return payload, nil
}

// GenerateEncryptedQR returns a PNG QR code of the sealed payload.
func (q *QRGenerator) GenerateEncryptedQR(payload models.TicketPayload) ([]byte, error) {
	sealed, err := q.Seal(payload)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(sealed, qrcode.Medium, q.size)
}
