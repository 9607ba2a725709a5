package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"sync"
)

// Control is a command sent to the browser that owns the real media devices.
type Control struct {
	Type string     `json:"type"` // open_source | start_recording | stop_recording | close_source
	Kind SourceKind `json:"kind,omitempty"`
}

type sourceReply struct {
	kind     SourceKind
	mimeType string
	err      error
}

// RemoteDevice is a Device whose streams live in the candidate's browser. The socket
// reader feeds browser messages in through the Source*, Chunk, Frame and
// RecordingStopped methods, which never block.
type RemoteDevice struct {
	send func(ctx context.Context, c Control) error

	mu      sync.Mutex
	replies chan sourceReply
	stream  *remoteStream
}

func NewRemoteDevice(send func(ctx context.Context, c Control) error) *RemoteDevice {
	return &RemoteDevice{send: send}
}

func (d *RemoteDevice) Open(ctx context.Context, kind SourceKind) (Stream, error) {
	replies := make(chan sourceReply, 1)
	d.mu.Lock()
	d.replies = replies
	d.mu.Unlock()

	if err := d.send(ctx, Control{Type: "open_source", Kind: kind}); err != nil {
		return nil, err
	}

	select {
	case r := <-replies:
		if r.err != nil {
			return nil, r.err
		}
		s := newRemoteStream(d, r.kind, r.mimeType)
		d.mu.Lock()
		d.stream = s
		d.mu.Unlock()
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *RemoteDevice) reply(r sourceReply) {
	d.mu.Lock()
	ch := d.replies
	d.replies = nil
	d.mu.Unlock()
	if ch == nil {
		return
	}
	ch <- r
}

// SourceReady reports that the browser acquired kind.
func (d *RemoteDevice) SourceReady(kind SourceKind, mimeType string) {
	d.reply(sourceReply{kind: kind, mimeType: mimeType})
}

// SourceDenied reports a refused or cancelled permission prompt.
func (d *RemoteDevice) SourceDenied(reason string) {
	err := ErrPermissionDenied
	if reason != "" {
		err = errors.Join(ErrPermissionDenied, errors.New(reason))
	}
	d.reply(sourceReply{err: err})
}

// SourceEnded reports that the user stopped the source from the browser.
func (d *RemoteDevice) SourceEnded() {
	if s := d.current(); s != nil {
		s.end()
	}
}

func (d *RemoteDevice) Chunk(data []byte) {
	if s := d.current(); s != nil {
		s.append(data)
	}
}

func (d *RemoteDevice) Frame(data []byte) error {
	s := d.current()
	if s == nil {
		return nil
	}
	img, err := DecodeFrame(data)
	if err != nil {
		return err
	}
	s.setFrame(img)
	return nil
}

func (d *RemoteDevice) RecordingStopped() {
	if s := d.current(); s != nil {
		s.stopped()
	}
}

func (d *RemoteDevice) current() *remoteStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stream
}

type remoteStream struct {
	dev      *RemoteDevice
	kind     SourceKind
	mimeType string

	mu        sync.Mutex
	recording bool
	buf       bytes.Buffer
	frame     image.Image
	stopAck   chan struct{}
	ended     chan struct{}
	endOnce   sync.Once
}

func newRemoteStream(d *RemoteDevice, kind SourceKind, mimeType string) *remoteStream {
	if mimeType == "" {
		mimeType = "video/webm"
	}
	return &remoteStream{dev: d, kind: kind, mimeType: mimeType, ended: make(chan struct{})}
}

func (s *remoteStream) Kind() SourceKind       { return s.kind }
func (s *remoteStream) MIMEType() string       { return s.mimeType }
func (s *remoteStream) Ended() <-chan struct{} { return s.ended }

func (s *remoteStream) StartRecording(ctx context.Context) error {
	s.mu.Lock()
	s.buf.Reset()
	s.recording = true
	s.stopAck = make(chan struct{})
	s.mu.Unlock()
	return s.dev.send(ctx, Control{Type: "start_recording", Kind: s.kind})
}

// StopRecording waits for the browser to flush its last chunk. If the source ended
// first, whatever arrived is returned.
func (s *remoteStream) StopRecording(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	ack := s.stopAck
	s.mu.Unlock()
	if ack == nil {
		return nil, ErrNotRecording
	}

	if err := s.dev.send(ctx, Control{Type: "stop_recording", Kind: s.kind}); err != nil {
		return nil, err
	}
	select {
	case <-ack:
	case <-s.ended:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.recording = false
	s.stopAck = nil
	out := make([]byte, s.buf.Len())
	copy(out, s.buf.Bytes())
	s.buf.Reset()
	return out, nil
}

func (s *remoteStream) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame, nil
}

func (s *remoteStream) Close() error {
	s.dev.mu.Lock()
	if s.dev.stream == s {
		s.dev.stream = nil
	}
	s.dev.mu.Unlock()
	s.end()
	return s.dev.send(context.Background(), Control{Type: "close_source", Kind: s.kind})
}

func (s *remoteStream) append(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recording {
		s.buf.Write(data)
	}
}

func (s *remoteStream) setFrame(img image.Image) {
	s.mu.Lock()
	s.frame = img
	s.mu.Unlock()
}

func (s *remoteStream) stopped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopAck != nil {
		select {
		case <-s.stopAck:
		default:
			close(s.stopAck)
		}
	}
}

func (s *remoteStream) end() { s.endOnce.Do(func() { close(s.ended) }) }
