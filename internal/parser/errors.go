package parser

import "errors"

// ErrRejected matches every document rejection with errors.Is.
var ErrRejected = errors.New("document rejected")

// Kind tags why a line was rejected.
type Kind int

const (
	KindJSONFormat Kind = iota + 1
	KindSchema
	KindTimestamp
	KindFilePath
	KindFilename
)

func (k Kind) String() string {
	switch k {
	case KindJSONFormat:
		return "JSONFormatError"
	case KindSchema:
		return "SchemaError"
	case KindTimestamp:
		return "TimestampError"
	case KindFilePath:
		return "FilePathError"
	case KindFilename:
		return "FilenameError"
	default:
		return "UnknownError"
	}
}

// Error is a rejected log line. Callers branch on Kind.
type Error struct {
	Kind    Kind
	Message string
	Err     error // underlying decoder or schema error, if any
}

func (e *Error) Error() string { return e.Kind.String() + ": " + e.Message }

func (e *Error) Unwrap() error { return e.Err }

// Is reports every rejection as ErrRejected.
func (e *Error) Is(target error) bool { return target == ErrRejected }

func reject(k Kind, msg string) *Error {
	return &Error{Kind: k, Message: msg}
}

// AsError extracts the rejection from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
