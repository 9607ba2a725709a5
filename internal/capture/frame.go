package capture

import (
	"bytes"
	"image"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxFrameWidth = 640
	frameQuality         = 80
)

// Frame is a still image ready for upload.
type Frame struct {
	MIMEType string
	Data     []byte
	Width    int
	Height   int
}

// Downscale shrinks img to at most maxWidth pixels wide, keeping the aspect ratio.
func Downscale(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img
	}
	h := b.Dy() * maxWidth / b.Dx()
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// EncodeFrame downscales img and encodes it as JPEG.
func EncodeFrame(img image.Image, maxWidth int) (Frame, error) {
	small := Downscale(img, maxWidth)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, small, &jpeg.Options{Quality: frameQuality}); err != nil {
		return Frame{}, err
	}
	b := small.Bounds()
	return Frame{MIMEType: "image/jpeg", Data: buf.Bytes(), Width: b.Dx(), Height: b.Dy()}, nil
}

// DecodeFrame decodes a JPEG, PNG or WebP still sent by the browser.
func DecodeFrame(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}
