package capture

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoockh/yoointerview/internal/logger"
	"github.com/yoockh/yoointerview/internal/utils"
)

type fakeStream struct {
	kind   SourceKind
	mu     sync.Mutex
	data   []byte
	frame  image.Image
	ended  chan struct{}
	closed bool
}

func (s *fakeStream) Kind() SourceKind                     { return s.kind }
func (s *fakeStream) MIMEType() string                     { return "video/webm" }
func (s *fakeStream) StartRecording(context.Context) error { return nil }
func (s *fakeStream) Ended() <-chan struct{}               { return s.ended }
func (s *fakeStream) Frame() (image.Image, error)          { return s.frame, nil }
func (s *fakeStream) StopRecording(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data, nil
}
func (s *fakeStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

type fakeDevice struct {
	mu      sync.Mutex
	deny    map[SourceKind]bool
	opened  []*fakeStream
	payload []byte
	frame   image.Image
}

func (d *fakeDevice) Open(_ context.Context, kind SourceKind) (Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.deny[kind] {
		return nil, ErrPermissionDenied
	}
	s := &fakeStream{kind: kind, data: d.payload, frame: d.frame, ended: make(chan struct{})}
	d.opened = append(d.opened, s)
	return s, nil
}

func (d *fakeDevice) last() *fakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened[len(d.opened)-1]
}

func solid(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	return img
}

func TestSourceKind_Other(t *testing.T) {
	assert.Equal(t, SourceCamera, SourceScreen.Other())
	assert.Equal(t, SourceScreen, SourceCamera.Other())
}

func TestUnit_RecordCycle(t *testing.T) {
	dev := &fakeDevice{payload: []byte("webm-bytes")}
	var got []Recording
	u := NewUnit(dev, Options{Logger: logger.Discard(), OnRecording: func(r Recording) { got = append(got, r) }})
	ctx := context.Background()

	assert.Equal(t, StateUninitialized, u.State())
	require.NoError(t, u.SelectSource(ctx, SourceScreen))
	assert.Equal(t, StateReady, u.State())

	require.NoError(t, u.StartRecording(ctx))
	assert.Equal(t, StateRecording, u.State())

	rec, err := u.StopRecording(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("webm-bytes"), rec.Data)
	assert.Equal(t, SourceScreen, rec.Source)
	assert.Equal(t, StateReady, u.State())
	require.Len(t, got, 1)

	_, err = u.StopRecording(ctx)
	assert.ErrorIs(t, err, ErrNotRecording)
}

func TestUnit_StartWithoutStreamOnlyLogs(t *testing.T) {
	u := NewUnit(&fakeDevice{}, Options{Logger: logger.Discard()})
	assert.ErrorIs(t, u.StartRecording(context.Background()), ErrNotReady)
	assert.Equal(t, StateUninitialized, u.State())
}

func TestUnit_PermissionDeniedThenRecover(t *testing.T) {
	dev := &fakeDevice{deny: map[SourceKind]bool{SourceScreen: true}}
	var states []State
	u := NewUnit(dev, Options{Logger: logger.Discard(), OnState: func(s State, _ SourceKind, _ error) { states = append(states, s) }})

	err := u.SelectSource(context.Background(), SourceScreen)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Contains(t, utils.SafeMessage(err), "camera")
	assert.Equal(t, StateError, u.State())
	assert.Equal(t, err, u.Err())

	require.NoError(t, u.SelectSource(context.Background(), SourceCamera))
	assert.Equal(t, StateReady, u.State())
	assert.Nil(t, u.Err())
	assert.Equal(t, []State{StateSelecting, StateError, StateSelecting, StateReady}, states)
}

func TestUnit_SwitchTearsDownPrevious(t *testing.T) {
	dev := &fakeDevice{payload: []byte("partial")}
	var got []Recording
	u := NewUnit(dev, Options{Logger: logger.Discard(), OnRecording: func(r Recording) { got = append(got, r) }})
	ctx := context.Background()

	require.NoError(t, u.SelectSource(ctx, SourceScreen))
	first := dev.last()
	require.NoError(t, u.StartRecording(ctx))
	require.NoError(t, u.SelectSource(ctx, SourceCamera))

	assert.True(t, first.closed)
	assert.Equal(t, SourceCamera, u.Kind())
	assert.Equal(t, StateReady, u.State())
	require.Len(t, got, 1, "recording in progress is finalized")
}

func TestUnit_SourceEndedFallsBack(t *testing.T) {
	dev := &fakeDevice{payload: []byte("cut-short")}
	recs := make(chan Recording, 1)
	u := NewUnit(dev, Options{Logger: logger.Discard(), OnRecording: func(r Recording) { recs <- r }})
	ctx := context.Background()

	require.NoError(t, u.SelectSource(ctx, SourceScreen))
	require.NoError(t, u.StartRecording(ctx))
	close(dev.last().ended)

	select {
	case r := <-recs:
		assert.Equal(t, SourceScreen, r.Source)
	case <-time.After(time.Second):
		t.Fatal("recording not emitted on source end")
	}
	require.Eventually(t, func() bool {
		return u.Kind() == SourceCamera && u.State() == StateReady
	}, time.Second, 5*time.Millisecond)
}

func TestUnit_CaptureFrame(t *testing.T) {
	dev := &fakeDevice{frame: solid(1280, 720)}
	u := NewUnit(dev, Options{Logger: logger.Discard(), MaxFrameWidth: 320})

	f, err := u.CaptureFrame()
	require.NoError(t, err)
	assert.Nil(t, f, "no frame before a stream is ready")

	require.NoError(t, u.SelectSource(context.Background(), SourceCamera))
	f, err = u.CaptureFrame()
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "image/jpeg", f.MIMEType)
	assert.Equal(t, 320, f.Width)
	assert.Equal(t, 180, f.Height)
}

func TestDownscale_KeepsSmallImages(t *testing.T) {
	img := solid(100, 50)
	assert.Equal(t, img, Downscale(img, 640))
}

func TestDecodeFrame_PNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(8, 4)))
	img, err := DecodeFrame(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())

	_, err = DecodeFrame([]byte("not an image"))
	assert.Error(t, err)
}

// browser plays the client side of a RemoteDevice.
func browser(t *testing.T, deny bool) (*RemoteDevice, chan Control) {
	t.Helper()
	controls := make(chan Control, 16)
	var dev *RemoteDevice
	dev = NewRemoteDevice(func(_ context.Context, c Control) error {
		controls <- c
		switch c.Type {
		case "open_source":
			go func() {
				if deny {
					dev.SourceDenied("NotAllowedError")
					return
				}
				dev.SourceReady(c.Kind, "video/webm;codecs=vp8,opus")
			}()
		case "stop_recording":
			go func() {
				dev.Chunk([]byte("-tail"))
				dev.RecordingStopped()
			}()
		}
		return nil
	})
	return dev, controls
}

func TestRemoteDevice_RecordsChunksInOrder(t *testing.T) {
	dev, _ := browser(t, false)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	s, err := dev.Open(ctx, SourceScreen)
	require.NoError(t, err)
	assert.Equal(t, "video/webm;codecs=vp8,opus", s.MIMEType())

	dev.Chunk([]byte("ignored"))
	require.NoError(t, s.StartRecording(ctx))
	dev.Chunk([]byte("head"))
	data, err := s.StopRecording(ctx)
	require.NoError(t, err)
	assert.Equal(t, "head-tail", string(data))
}

func TestRemoteDevice_Denied(t *testing.T) {
	dev, _ := browser(t, true)
	_, err := dev.Open(context.Background(), SourceCamera)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestRemoteDevice_SourceEndedClosesStream(t *testing.T) {
	dev, controls := browser(t, false)
	s, err := dev.Open(context.Background(), SourceScreen)
	require.NoError(t, err)

	dev.SourceEnded()
	select {
	case <-s.Ended():
	case <-time.After(time.Second):
		t.Fatal("stream not ended")
	}

	require.NoError(t, s.Close())
	var types []string
	for len(controls) > 0 {
		types = append(types, (<-controls).Type)
	}
	assert.Equal(t, []string{"open_source", "close_source"}, types)
}

func TestRemoteDevice_Frame(t *testing.T) {
	dev, _ := browser(t, false)
	s, err := dev.Open(context.Background(), SourceCamera)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(16, 9)))
	require.NoError(t, dev.Frame(buf.Bytes()))

	img, err := s.Frame()
	require.NoError(t, err)
	require.NotNil(t, img)
	assert.Equal(t, 16, img.Bounds().Dx())
}
