package ingestion

import "errors"

// Rejection errors drop the detection permanently: the message is logged
// with its raw payload for offline reprocessing and nacked without
// requeue. Anything else is a transient failure the transport may retry.
var (
	ErrBadPayload   = errors.New("malformed message")
	ErrMissingField = errors.New("missing required field")
	ErrBadTimestamp = errors.New("unrecognized timestamp")
	ErrImageUpload  = errors.New("image upload failed")
)

// IsReject reports whether the error means the detection itself is bad
// (no retry), as opposed to a downstream failure.
func IsReject(err error) bool {
	return errors.Is(err, ErrBadPayload) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrBadTimestamp) ||
		errors.Is(err, ErrImageUpload)
}
