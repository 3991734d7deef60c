// Package tickets produces collision-resistant ticket identifiers and the
// scannable QR payload bound to a successful admission.
package tickets

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	qrcode "github.com/skip2/go-qrcode"
)

// IDPrefix marks ticket identifiers so scanners can recognize them.
const IDPrefix = "TCK-"

// idRandomBytes gives 64 bits of entropy per ticket id.
const idRandomBytes = 8

// qrSize is the generated QR PNG edge length in pixels.
const qrSize = 256

// Ticket is the issued (identifier, payload) pair for one admission.
type Ticket struct {
	ID       string `json:"ticket_id"`
	QRBase64 string `json:"qr_base64"` // PNG, base64-encoded
	PNG      []byte `json:"-"`
}

// Payload is the structured record encoded into the QR image.
type Payload struct {
	TicketID string    `json:"ticket_id"`
	Event    string    `json:"event"`
	Email    string    `json:"email"`
	IssuedAt time.Time `json:"issued_at"`
}

// NewID generates a ticket identifier with a random 64-bit component.
func NewID() (string, error) {
	b := make([]byte, idRandomBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("random ticket id: %w", err)
	}
	return IDPrefix + hex.EncodeToString(b), nil
}

// Issue generates a fresh ticket for the participant and event. Uniqueness is
// enforced at the registration storage layer; callers retry with a new Issue
// on a stored-ticket collision.
func Issue(eventName, participantEmail string) (*Ticket, error) {
	id, err := NewID()
	if err != nil {
		return nil, err
	}
	payload := Payload{
		TicketID: id,
		Event:    eventName,
		Email:    participantEmail,
		IssuedAt: time.Now().UTC(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal ticket payload: %w", err)
	}
	png, err := qrcode.Encode(string(body), qrcode.Medium, qrSize)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return &Ticket{
		ID:       id,
		QRBase64: base64.StdEncoding.EncodeToString(png),
		PNG:      png,
	}, nil
}

// DecodePayload parses a scanned QR payload back into its record.
func DecodePayload(data []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode ticket payload: %w", err)
	}
	return &p, nil
}
