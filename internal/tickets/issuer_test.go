package tickets

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewIDFormat(t *testing.T) {
	id, err := NewID()
	if err != nil {
		t.Fatalf("NewID: %v", err)
	}
	if !strings.HasPrefix(id, IDPrefix) {
		t.Fatalf("id %q missing prefix %q", id, IDPrefix)
	}
	if len(id) != len(IDPrefix)+idRandomBytes*2 {
		t.Fatalf("id %q has wrong length %d", id, len(id))
	}
}

func TestNewIDNoImmediateCollision(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id, err := NewID()
		if err != nil {
			t.Fatalf("NewID: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q after %d draws", id, i)
		}
		seen[id] = true
	}
}

func TestIssueRoundTrip(t *testing.T) {
	tk, err := Issue("Robo Race", "alice@campus.edu")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if tk.ID == "" || tk.QRBase64 == "" || len(tk.PNG) == 0 {
		t.Fatalf("incomplete ticket: %+v", tk)
	}
	if _, err := base64.StdEncoding.DecodeString(tk.QRBase64); err != nil {
		t.Fatalf("qr is not valid base64: %v", err)
	}

	// The QR encodes the JSON payload; verify the record shape directly.
	payload := Payload{TicketID: tk.ID, Event: "Robo Race", Email: "alice@campus.edu"}
	body, _ := json.Marshal(payload)
	got, err := DecodePayload(body)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if got.TicketID != tk.ID || got.Event != "Robo Race" || got.Email != "alice@campus.edu" {
		t.Fatalf("payload mismatch: %+v", got)
	}
}

func TestIssueFreshIDEachTime(t *testing.T) {
	a, err := Issue("Hack Night", "bob@campus.edu")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	b, err := Issue("Hack Night", "bob@campus.edu")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if a.ID == b.ID {
		t.Fatalf("re-issue produced the same id %q", a.ID)
	}
}
