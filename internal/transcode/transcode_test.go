package transcode

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yoockh/yoointerview/internal/models"
	"github.com/yoockh/yoointerview/internal/utils"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestEncodeBlobRoundTrip(t *testing.T) {
	payload := []byte{0x1a, 0x45, 0xdf, 0xa3, 0x00, 0xff}
	text, err := EncodeBlob(bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, EncodeBytes(payload), text)

	back, mime, err := DecodeTransportText("data:audio/webm;base64," + text)
	require.NoError(t, err)
	assert.Equal(t, payload, back)
	assert.Equal(t, "audio/webm", mime)
}

func TestEncodeBlobEmptyIsTotal(t *testing.T) {
	text, err := EncodeBlob(bytes.NewReader(nil))
	require.NoError(t, err)
	assert.Equal(t, "", text)
}

func TestEncodeBlobReaderFault(t *testing.T) {
	_, err := EncodeBlob(failingReader{})
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeInternal))
}

func TestDecodeTransportTextRejectsGarbage(t *testing.T) {
	_, _, err := DecodeTransportText("%%%not-base64")
	assert.True(t, utils.IsCode(err, utils.CodeInvalidArgument))

	_, _, err = DecodeTransportText("data:image/png;base64")
	assert.True(t, utils.IsCode(err, utils.CodeInvalidArgument))
}

func TestIngestDocumentPDFKeepsBinary(t *testing.T) {
	pdf := []byte("%PDF-1.7\n1 0 obj\n<<>>\nendobj\n")
	doc, err := IngestDocument("resume.pdf", "", bytes.NewReader(pdf))
	require.NoError(t, err)
	assert.Equal(t, MIMEPDF, doc.MIMEType)
	assert.Equal(t, pdf, doc.Data)
	assert.Empty(t, doc.Text)
}

func TestIngestDocumentRejectsFakePDF(t *testing.T) {
	_, err := IngestDocument("resume.pdf", MIMEPDF, strings.NewReader("hello"))
	assert.True(t, utils.IsCode(err, utils.CodeInvalidArgument))
}

func TestIngestDocumentTextAndMarkdown(t *testing.T) {
	doc, err := IngestDocument("jd.md", "", strings.NewReader("# Senior Go Engineer"))
	require.NoError(t, err)
	assert.Equal(t, MIMEMarkdown, doc.MIMEType)
	assert.Equal(t, "# Senior Go Engineer", doc.Text)
	assert.Nil(t, doc.Data)

	doc, err = IngestDocument("notes", "text/plain; charset=utf-8", strings.NewReader("plain"))
	require.NoError(t, err)
	assert.Equal(t, MIMEText, doc.MIMEType)
}

func TestIngestDocumentRejectsUnsupported(t *testing.T) {
	for _, tc := range []struct{ name, mime string }{
		{"resume.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
		{"photo.png", "image/png"},
		{"noext", ""},
	} {
		_, err := IngestDocument(tc.name, tc.mime, strings.NewReader("data"))
		require.Error(t, err, tc.name)
		assert.True(t, utils.IsCode(err, utils.CodeInvalidArgument))
		assert.Contains(t, utils.SafeMessage(err), "unsupported file type")
	}
}

func TestIngestDocumentRejectsEmptyAndInvalidUTF8(t *testing.T) {
	_, err := IngestDocument("jd.txt", "", strings.NewReader("   \n"))
	assert.True(t, utils.IsCode(err, utils.CodeInvalidArgument))

	_, err = IngestDocument("jd.txt", "", bytes.NewReader([]byte{0xff, 0xfe, 0xfd}))
	assert.True(t, utils.IsCode(err, utils.CodeInvalidArgument))
}

func TestValidateDocument(t *testing.T) {
	assert.Error(t, ValidateDocument("resume", models.Document{Name: "r"}))
	assert.Error(t, ValidateDocument("resume", models.Document{Data: []byte("x"), Text: "y"}))
	assert.NoError(t, ValidateDocument("resume", models.Document{Text: "y"}))
}

func TestReadAllLimit(t *testing.T) {
	b, err := ReadAll(strings.NewReader("abc"), 3)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(b))

	_, err = ReadAll(strings.NewReader("abcd"), 3)
	assert.True(t, utils.IsCode(err, utils.CodeInvalidArgument))
}
