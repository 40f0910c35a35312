package fabric

import (
	"errors"
	"strings"

	"github.com/hyperledger/fabric-protos-go-apiv2/gateway"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Detail is one peer's contribution to a failed endorsement or evaluation.
type Detail struct {
	Address string `json:"address"`
	MSPID   string `json:"mspId"`
	Message string `json:"message"`
}

// Error is a failed chaincode call. Message is the chaincode's own error
// text when a peer reported one.
type Error struct {
	Op      string
	Code    codes.Code
	Message string
	Details []Detail
	Err     error
}

func (e *Error) Error() string { return e.Op + ": " + e.Message }
func (e *Error) Unwrap() error { return e.Err }

func wrapError(op string, err error) error {
	st := status.Convert(err)
	e := &Error{Op: op, Code: st.Code(), Message: st.Message(), Err: err}
	for _, d := range st.Details() {
		ed, ok := d.(*gateway.ErrorDetail)
		if !ok {
			continue
		}
		e.Details = append(e.Details, Detail{Address: ed.GetAddress(), MSPID: ed.GetMspId(), Message: ed.GetMessage()})
	}
	if len(e.Details) > 0 && e.Details[0].Message != "" {
		e.Message = chaincodeMessage(e.Details[0].Message)
	}
	return e
}

// chaincodeMessage strips the peer's "chaincode response 500, " prefix.
func chaincodeMessage(msg string) string {
	if i := strings.Index(msg, "chaincode response 500, "); i >= 0 {
		return msg[i+len("chaincode response 500, "):]
	}
	return msg
}

// Kind classifies a chaincode failure for HTTP mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindForbidden
	KindConflict
	KindInvalid
)

// Classify inspects the chaincode message of err.
func Classify(err error) Kind {
	var fe *Error
	if !errors.As(err, &fe) {
		if errors.Is(err, ErrUnknownOrg) || errors.Is(err, ErrUnknownContract) {
			return KindInvalid
		}
		return KindInternal
	}
	msg := strings.ToLower(fe.Message)
	switch {
	case strings.Contains(msg, "does not exist"), strings.Contains(msg, "not found"):
		return KindNotFound
	case strings.Contains(msg, "access denied"), strings.Contains(msg, "not authorized"):
		return KindForbidden
	case strings.Contains(msg, "already exists"), strings.Contains(msg, "more than once"):
		return KindConflict
	case strings.Contains(msg, "must be"), strings.Contains(msg, "is required"), strings.Contains(msg, "invalid"):
		return KindInvalid
	}
	return KindInternal
}
