package transcode

import (
	"bytes"
	"encoding/base64"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/yoockh/yoointerview/internal/models"
	"github.com/yoockh/yoointerview/internal/utils"
)

const MaxDocumentBytes = 10 << 20

const (
	MIMEPDF      = "application/pdf"
	MIMEText     = "text/plain"
	MIMEMarkdown = "text/markdown"
)

// EncodeBlob streams r into standard base64 transport text.
func EncodeBlob(r io.Reader) (string, error) {
	const op = "transcode.EncodeBlob"

	var buf bytes.Buffer
	enc := base64.NewEncoder(base64.StdEncoding, &buf)
	if _, err := io.Copy(enc, r); err != nil {
		return "", utils.E(utils.CodeInternal, op, "failed to read media", err)
	}
	if err := enc.Close(); err != nil {
		return "", utils.E(utils.CodeInternal, op, "failed to encode media", err)
	}
	return buf.String(), nil
}

func EncodeBytes(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

// ReadAll reads at most limit bytes from r. Longer input is rejected.
func ReadAll(r io.Reader, limit int64) ([]byte, error) {
	const op = "transcode.ReadAll"

	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to read upload", err)
	}
	if int64(len(body)) > limit {
		return nil, utils.E(utils.CodeInvalidArgument, op, "upload is too large", nil)
	}
	return body, nil
}

// DecodeTransportText accepts plain base64 or a data URL ("data:...;base64,").
func DecodeTransportText(s string) ([]byte, string, error) {
	const op = "transcode.DecodeTransportText"

	raw := strings.TrimSpace(s)
	mime := ""
	if strings.HasPrefix(raw, "data:") {
		i := strings.Index(raw, ",")
		if i < 0 {
			return nil, "", utils.E(utils.CodeInvalidArgument, op, "malformed data url", nil)
		}
		meta := strings.TrimPrefix(raw[:i], "data:")
		mime = strings.TrimSuffix(meta, ";base64")
		raw = raw[i+1:]
	}
	b, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, "", utils.E(utils.CodeInvalidArgument, op, "invalid base64 payload", err)
	}
	return b, mime, nil
}

type kind int

const (
	kindUnsupported kind = iota
	kindBinary
	kindText
)

func classify(name, declared string) (kind, string) {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if i := strings.Index(declared, ";"); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	switch declared {
	case MIMEPDF:
		return kindBinary, MIMEPDF
	case MIMEText:
		return kindText, MIMEText
	case MIMEMarkdown, "text/x-markdown":
		return kindText, MIMEMarkdown
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return kindBinary, MIMEPDF
	case ".txt", ".text":
		return kindText, MIMEText
	case ".md", ".markdown":
		return kindText, MIMEMarkdown
	}
	return kindUnsupported, declared
}

// IngestDocument reads an uploaded file into a Document. PDFs keep their
// bytes; plain text and Markdown are decoded to a string. Anything else is
// rejected.
func IngestDocument(name, declaredType string, r io.Reader) (models.Document, error) {
	const op = "transcode.IngestDocument"

	k, mime := classify(name, declaredType)
	if k == kindUnsupported {
		return models.Document{}, utils.E(utils.CodeInvalidArgument, op,
			"unsupported file type for "+name+": only PDF, plain text and Markdown are accepted", nil)
	}

	body, err := io.ReadAll(io.LimitReader(r, MaxDocumentBytes+1))
	if err != nil {
		return models.Document{}, utils.E(utils.CodeInternal, op, "failed to read "+name, err)
	}
	if len(body) > MaxDocumentBytes {
		return models.Document{}, utils.E(utils.CodeInvalidArgument, op, name+" is too large (max 10MB)", nil)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return models.Document{}, utils.E(utils.CodeInvalidArgument, op, name+" is empty", nil)
	}

	doc := models.Document{Name: name, MIMEType: mime}
	switch k {
	case kindBinary:
		if ct := http.DetectContentType(body); ct != MIMEPDF {
			return models.Document{}, utils.E(utils.CodeInvalidArgument, op, name+" is not a valid PDF", nil)
		}
		doc.Data = body
	case kindText:
		if !utf8.Valid(body) {
			return models.Document{}, utils.E(utils.CodeInvalidArgument, op, name+" is not valid UTF-8 text", nil)
		}
		doc.Text = string(body)
	}
	return doc, nil
}

// ValidateDocument enforces the Document invariant for documents that did not
// come through IngestDocument.
func ValidateDocument(field string, d models.Document) error {
	if d.IsEmpty() {
		return utils.E(utils.CodeInvalidArgument, "transcode.ValidateDocument", field+" is required", nil)
	}
	if d.IsBinary() && strings.TrimSpace(d.Text) != "" {
		return utils.E(utils.CodeInvalidArgument, "transcode.ValidateDocument", field+" must carry either binary data or text, not both", nil)
	}
	return nil
}
