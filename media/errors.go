package media

import (
	"errors"
	"fmt"
)

var (
	// ErrAborted is returned by blocking operations once their queue was aborted
	ErrAborted = errors.New("media: aborted")

	// ErrAgain means the codec needs a different call before progressing
	ErrAgain = errors.New("media: try again")

	// ErrUnsupported means a stream cannot be decoded
	ErrUnsupported = errors.New("media: unsupported stream")

	// ErrNoStreams means no stream of the source could be opened
	ErrNoStreams = errors.New("media: no stream could be opened")
)

// TransportError wraps an I/O failure of the underlying transport
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("media: transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransport reports whether err is a transport failure
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
