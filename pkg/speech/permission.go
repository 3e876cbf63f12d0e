package speech

import (
	"context"
	"errors"
	"fmt"
)

// ErrPermissionDenied is the sentinel wrapped by [PermissionError]. A denied
// grant is terminal for the current attempt: the user must grant access in
// the OS settings and restart the flow.
var ErrPermissionDenied = errors.New("speech: permission denied")

// Grant identifies one of the OS-level permissions the recognition pipeline
// requires.
type Grant string

const (
	// GrantMicrophone is the audio-capture permission.
	GrantMicrophone Grant = "microphone"

	// GrantRecognition is the speech-transcription permission.
	GrantRecognition Grant = "speech-recognition"
)

// PermissionError reports which grant was refused. It unwraps to
// [ErrPermissionDenied] so callers can classify with [errors.Is].
type PermissionError struct {
	Grant Grant
}

// Error implements the error interface.
func (e *PermissionError) Error() string {
	return fmt.Sprintf("speech: %s permission denied", e.Grant)
}

// Unwrap returns [ErrPermissionDenied].
func (e *PermissionError) Unwrap() error { return ErrPermissionDenied }

// Permissions abstracts the platform permission prompts for microphone
// capture and speech transcription. Requests are asynchronous on real
// platforms, hence the context parameter; both must succeed before a capture
// pipeline may start.
//
// Implementations must be safe for concurrent use.
type Permissions interface {
	// Request prompts for (or checks) the given grant. It returns nil when
	// granted and a [PermissionError] when refused. Requests are made lazily
	// on first session start, never at construction time.
	Request(ctx context.Context, grant Grant) error
}

// GrantAll is a Permissions implementation that grants everything. Suitable
// for server-side and CLI environments where OS permission prompts do not
// apply.
type GrantAll struct{}

// Request always returns nil.
func (GrantAll) Request(_ context.Context, _ Grant) error { return nil }

// Compile-time interface assertion.
var _ Permissions = GrantAll{}
