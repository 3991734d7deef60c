package response

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRejectedStatusByKind(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		kind Kind
		want int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindPrecondition, http.StatusUnprocessableEntity},
		{KindConflict, http.StatusConflict},
		{KindNotFound, http.StatusNotFound},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		Rejected(c, NewRejection(tc.kind, "some_code", "refused"))
		if rec.Code != tc.want {
			t.Errorf("kind %d: status = %d, want %d", tc.kind, rec.Code, tc.want)
		}
	}
}

func TestAsRejectionUnwraps(t *testing.T) {
	sentinel := NewRejection(KindConflict, "capacity_exceeded", "event is at capacity")

	if r, ok := AsRejection(sentinel); !ok || r.Code != "capacity_exceeded" {
		t.Fatalf("AsRejection(sentinel) = %v, %v", r, ok)
	}
	if r, ok := AsRejection(fmt.Errorf("admit: %w", sentinel)); !ok || r != sentinel {
		t.Fatalf("wrapped rejection not recovered: %v, %v", r, ok)
	}
	if _, ok := AsRejection(errors.New("disk on fire")); ok {
		t.Fatal("plain error treated as rejection")
	}
}
