package response

import (
	"errors"

	"github.com/gin-gonic/gin"
)

// Kind classifies an expected rejection for HTTP mapping.
type Kind int

const (
	KindValidation Kind = iota
	KindPrecondition
	KindConflict
	KindNotFound
)

// Rejection is an expected, structured refusal of an operation. It is an
// error so services can return it through normal error paths; handlers map
// it to a status via Rejected. Anything that is not a Rejection is treated
// as an internal failure.
type Rejection struct {
	Kind    Kind
	Code    string
	Message string
}

// Error implements the error interface.
func (r *Rejection) Error() string { return r.Message }

// NewRejection creates a rejection with a machine-readable code.
func NewRejection(kind Kind, code, message string) *Rejection {
	return &Rejection{Kind: kind, Code: code, Message: message}
}

// AsRejection unwraps err to a Rejection if it is one.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// Rejected writes the rejection with the status matching its kind.
func Rejected(c *gin.Context, r *Rejection) {
	switch r.Kind {
	case KindValidation:
		BadRequest(c, r.Message)
	case KindPrecondition:
		Precondition(c, r.Code, r.Message)
	case KindConflict:
		Conflict(c, r.Code, r.Message)
	case KindNotFound:
		NotFound(c, r.Code, r.Message)
	default:
		Internal(c, "unexpected failure")
	}
}
