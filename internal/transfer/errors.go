package transfer

import "errors"

// Terminal errors. These are never retried: the operator has to fix the
// underlying precondition before another attempt can succeed.
var (
	// ErrMissingOriginReference means the catalog row has no origin URL to
	// download from.
	ErrMissingOriginReference = errors.New("transfer: recording has no origin reference")
	// ErrCredentialsUnavailable means no credentialed origin client was
	// provided, so the payload cannot be fetched.
	ErrCredentialsUnavailable = errors.New("transfer: origin credentials unavailable")
	// ErrUploadNotConfirmed means origin deletion was requested before a
	// durable copy was confirmed. The origin copy is the only copy; it stays.
	ErrUploadNotConfirmed = errors.New("transfer: upload not confirmed, refusing origin delete")
)
