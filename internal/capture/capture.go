package capture

import (
	"context"
	"errors"
	"image"
	"time"
)

type SourceKind string

const (
	SourceScreen SourceKind = "screen"
	SourceCamera SourceKind = "camera"
)

func (k SourceKind) Valid() bool { return k == SourceScreen || k == SourceCamera }

// Other is the fallback source.
func (k SourceKind) Other() SourceKind {
	if k == SourceScreen {
		return SourceCamera
	}
	return SourceScreen
}

type State string

const (
	StateUninitialized State = "uninitialized"
	StateSelecting     State = "selecting"
	StateReady         State = "ready"
	StateRecording     State = "recording"
	StateError         State = "error"
)

var (
	ErrPermissionDenied = errors.New("capture permission denied")
	ErrNotReady         = errors.New("capture stream not ready")
	ErrNotRecording     = errors.New("not recording")
)

// Recording is one finished answer as an opaque encoded blob.
type Recording struct {
	Source    SourceKind
	MIMEType  string
	Data      []byte
	StartedAt time.Time
	StoppedAt time.Time
}

func (r Recording) Size() int { return len(r.Data) }

func (r Recording) Duration() time.Duration { return r.StoppedAt.Sub(r.StartedAt) }

// Stream is an acquired capture stream. Screen and camera streams share it.
type Stream interface {
	Kind() SourceKind
	MIMEType() string
	StartRecording(ctx context.Context) error
	// StopRecording finalizes buffered chunks into one blob.
	StopRecording(ctx context.Context) ([]byte, error)
	// Frame is the latest video frame, or nil before the first one.
	Frame() (image.Image, error)
	// Ended is closed when the source stops on its own.
	Ended() <-chan struct{}
	Close() error
}

// Device acquires streams, prompting for permission where needed.
type Device interface {
	Open(ctx context.Context, kind SourceKind) (Stream, error)
}
