package stt

import (
	"context"
	"errors"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
)

var ErrUnsupportedEncoding = errors.New("stt: unsupported audio encoding")

type GoogleSpeech struct {
	c *speech.Client
}

func NewGoogleSpeech(ctx context.Context, opts ...option.ClientOption) (*GoogleSpeech, error) {
	c, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &GoogleSpeech{c: c}, nil
}

func (g *GoogleSpeech) Close() error { return g.c.Close() }

// EncodingFor maps a recorder MIME type to a Speech encoding and sample rate.
// Only audio-only containers are supported.
func EncodingFor(mimeType string) (speechpb.RecognitionConfig_AudioEncoding, int32, error) {
	m := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(m, ";"); i >= 0 {
		m = m[:i]
	}
	switch m {
	case "audio/webm":
		return speechpb.RecognitionConfig_WEBM_OPUS, 48000, nil
	case "audio/ogg":
		return speechpb.RecognitionConfig_OGG_OPUS, 48000, nil
	case "audio/wav", "audio/x-wav", "audio/l16":
		return speechpb.RecognitionConfig_LINEAR16, 16000, nil
	case "audio/flac":
		return speechpb.RecognitionConfig_FLAC, 0, nil
	}
	return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, 0, ErrUnsupportedEncoding
}

// language example: "en-US", "id-ID"
func (g *GoogleSpeech) Transcribe(ctx context.Context, audio []byte, mimeType, language string) (string, float64, error) {
	if language == "" {
		language = "en-US"
	}
	enc, rate, err := EncodingFor(mimeType)
	if err != nil {
		return "", 0, err
	}

	resp, err := g.c.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   enc,
			SampleRateHertz:            rate,
			LanguageCode:               language,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	})
	if err != nil {
		return "", 0, err
	}

	var bestText string
	var bestConf float64
	for _, r := range resp.Results {
		for _, alt := range r.Alternatives {
			if alt.Transcript != "" && float64(alt.Confidence) >= bestConf {
				bestText = alt.Transcript
				bestConf = float64(alt.Confidence)
			}
		}
	}

	return bestText, bestConf, nil
}
