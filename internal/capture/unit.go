package capture

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/yoointerview/internal/utils"
)

const fallbackTimeout = 30 * time.Second

type Options struct {
	MaxFrameWidth int
	// OnRecording receives every finalized recording, including ones cut short by a
	// source switch.
	OnRecording func(Recording)
	OnState     func(State, SourceKind, error)
	Logger      *logrus.Logger
}

// Unit owns the capture stream of one session.
type Unit struct {
	dev  Device
	opts Options
	log  *logrus.Logger

	mu        sync.Mutex
	state     State
	kind      SourceKind
	stream    Stream
	startedAt time.Time
	lastErr   error
}

func NewUnit(dev Device, opts Options) *Unit {
	if opts.MaxFrameWidth <= 0 {
		opts.MaxFrameWidth = DefaultMaxFrameWidth
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	return &Unit{dev: dev, opts: opts, log: opts.Logger, state: StateUninitialized}
}

func (u *Unit) State() State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

func (u *Unit) Kind() SourceKind {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.kind
}

func (u *Unit) Err() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.lastErr
}

// SelectSource acquires a new stream of kind, tearing down the previous one. A recording
// in progress is finalized first. On permission denial the unit enters Error; calling
// SelectSource again (same or other kind) is the recovery path.
func (u *Unit) SelectSource(ctx context.Context, kind SourceKind) error {
	const op = "capture.SelectSource"
	if !kind.Valid() {
		return utils.E(utils.CodeInvalidArgument, op, "source must be screen or camera", nil)
	}

	u.mu.Lock()
	old, wasRecording := u.detach()
	u.state = StateSelecting
	u.kind = kind
	u.lastErr = nil
	u.mu.Unlock()
	u.notify(StateSelecting, kind, nil)

	if old != nil {
		if wasRecording {
			u.finalize(ctx, old)
		}
		_ = old.Close()
	}

	s, err := u.dev.Open(ctx, kind)
	if err != nil {
		msg := "could not start " + string(kind) + " capture"
		if errors.Is(err, ErrPermissionDenied) {
			msg = string(kind) + " permission was denied, try again or switch to " + string(kind.Other())
		}
		appErr := utils.E(utils.CodeFailedPrecondition, op, msg, err)
		u.mu.Lock()
		u.state = StateError
		u.lastErr = appErr
		u.mu.Unlock()
		u.notify(StateError, kind, appErr)
		return appErr
	}

	u.mu.Lock()
	u.stream = s
	u.state = StateReady
	u.mu.Unlock()
	u.notify(StateReady, kind, nil)

	go u.watch(s)
	return nil
}

// detach takes the current stream out of the unit. Callers hold u.mu.
func (u *Unit) detach() (Stream, bool) {
	s := u.stream
	recording := u.state == StateRecording
	u.stream = nil
	return s, recording
}

// watch falls back to the other source when s ends on its own.
func (u *Unit) watch(s Stream) {
	<-s.Ended()

	u.mu.Lock()
	if u.stream != s {
		u.mu.Unlock()
		return
	}
	kind := u.kind
	u.mu.Unlock()

	u.log.WithField("source", kind).Info("capture source ended, falling back")
	ctx, cancel := context.WithTimeout(context.Background(), fallbackTimeout)
	defer cancel()
	if err := u.SelectSource(ctx, kind.Other()); err != nil {
		u.log.WithError(err).Warn("capture fallback failed")
	}
}

// StartRecording begins buffering. Without a ready stream it only logs.
func (u *Unit) StartRecording(ctx context.Context) error {
	u.mu.Lock()
	if u.state != StateReady || u.stream == nil {
		state := u.state
		u.mu.Unlock()
		u.log.WithField("state", state).Warn("start recording ignored, stream not ready")
		return ErrNotReady
	}
	s, kind := u.stream, u.kind
	u.mu.Unlock()

	if err := s.StartRecording(ctx); err != nil {
		u.log.WithError(err).Warn("start recording failed")
		return err
	}

	u.mu.Lock()
	if u.stream == s && u.state == StateReady {
		u.state = StateRecording
		u.startedAt = time.Now()
	}
	u.mu.Unlock()
	u.notify(StateRecording, kind, nil)
	return nil
}

// StopRecording finalizes the recording and hands it to OnRecording. A zero or tiny blob
// is still returned; deciding that it holds no answer is up to the caller.
func (u *Unit) StopRecording(ctx context.Context) (Recording, error) {
	u.mu.Lock()
	if u.state != StateRecording || u.stream == nil {
		u.mu.Unlock()
		return Recording{}, ErrNotRecording
	}
	s := u.stream
	u.mu.Unlock()

	rec, err := u.finalize(ctx, s)
	if err != nil {
		return Recording{}, err
	}

	u.mu.Lock()
	if u.stream == s {
		u.state = StateReady
	}
	kind := u.kind
	u.mu.Unlock()
	u.notify(StateReady, kind, nil)
	return rec, nil
}

func (u *Unit) finalize(ctx context.Context, s Stream) (Recording, error) {
	data, err := s.StopRecording(ctx)
	if err != nil {
		u.log.WithError(err).Warn("stop recording failed")
		return Recording{}, err
	}
	u.mu.Lock()
	started := u.startedAt
	u.mu.Unlock()

	rec := Recording{Source: s.Kind(), MIMEType: s.MIMEType(), Data: data, StartedAt: started, StoppedAt: time.Now()}
	if u.opts.OnRecording != nil {
		u.opts.OnRecording(rec)
	}
	return rec, nil
}

// CaptureFrame rasterizes the current frame, downscaled. It returns nil when no
// stream or frame is available yet.
func (u *Unit) CaptureFrame() (*Frame, error) {
	u.mu.Lock()
	s := u.stream
	ready := u.state == StateReady || u.state == StateRecording
	u.mu.Unlock()
	if s == nil || !ready {
		return nil, nil
	}

	img, err := s.Frame()
	if err != nil || img == nil {
		return nil, err
	}
	f, err := EncodeFrame(img, u.opts.MaxFrameWidth)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// Close releases the stream without emitting a recording.
func (u *Unit) Close() error {
	u.mu.Lock()
	s, _ := u.detach()
	u.state = StateUninitialized
	u.mu.Unlock()
	if s != nil {
		return s.Close()
	}
	return nil
}

func (u *Unit) notify(state State, kind SourceKind, err error) {
	if u.opts.OnState != nil {
		u.opts.OnState(state, kind, err)
	}
}
