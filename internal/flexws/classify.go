package flexws

import "fmt"

type ErrorKind int

const (
	// KindPending: the statement is not ready yet; retry later with the
	// same reference code.
	KindPending ErrorKind = iota
	// KindRejected: the service declined a submit (bad token, bad query,
	// throttled).
	KindRejected
	// KindFailed: a terminal fetch failure (expired or invalid reference,
	// service-side error).
	KindFailed
)

// RemoteError is a service-reported error, classified from the ErrorCode
// embedded in the FlexStatementResponse envelope.
type RemoteError struct {
	Code    string
	Message string
	Kind    ErrorKind
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("flex service error %s", e.Code)
	}
	return fmt.Sprintf("flex service error %s: %s", e.Code, e.Message)
}

// Vendor error codes that mean "try the same reference again shortly".
// The table is the single place to extend when IBKR adds codes; any code
// not listed here is treated as terminal.
var pendingCodes = map[string]bool{
	"1001": true, // statement could not be generated at this time
	"1004": true, // statement is incomplete
	"1005": true, // settlement data not ready
	"1006": true, // FIFO P/L data not ready
	"1007": true, // MTM P/L data not ready
	"1008": true, // MTM and FIFO P/L data not ready
	"1009": true, // server under heavy load
	"1019": true, // statement generation in progress
}

func fetchErrorKind(code string) ErrorKind {
	if pendingCodes[code] {
		return KindPending
	}
	return KindFailed
}
