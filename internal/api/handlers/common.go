package handlers

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/yoointerview/internal/capture"
	"github.com/yoockh/yoointerview/internal/gateway"
	"github.com/yoockh/yoointerview/internal/models"
	"github.com/yoockh/yoointerview/internal/transcode"
	"github.com/yoockh/yoointerview/internal/utils"
)

// MaxAnswerBytes caps one uploaded recording.
const MaxAnswerBytes = 64 << 20

type APIError struct {
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

func writeError(c *gin.Context, err error) {
	status := utils.HTTPStatus(err)

	var ae *utils.AppError
	if errors.As(err, &ae) {
		c.JSON(status, APIError{
			Code:    ae.Code,
			Message: ae.Message,
		})
		return
	}

	c.JSON(status, APIError{
		Code:    utils.CodeInternal,
		Message: http.StatusText(status),
	})
}

func requireUserID(c *gin.Context) (string, bool) {
	if v, ok := c.Get("user_id"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s, true
		}
	}

	writeError(c, utils.E(utils.CodeUnauthorized, "Auth", "unauthorized", nil))
	return "", false
}

func identity(c *gin.Context) (models.Identity, bool) {
	userID, ok := requireUserID(c)
	if !ok {
		return models.Identity{}, false
	}
	id := models.Identity{UserID: userID, SignedIn: true}
	if v, ok := c.Get("display_name"); ok {
		id.DisplayName, _ = v.(string)
	}
	return id, true
}

// formDocument reads field as an uploaded file, falling back to a plain text field
// named field+"_text".
func formDocument(c *gin.Context, field string) (models.Document, error) {
	const op = "handlers.formDocument"

	fh, err := c.FormFile(field)
	if err == nil {
		return fileDocument(fh)
	}
	if !errors.Is(err, http.ErrMissingFile) {
		return models.Document{}, utils.E(utils.CodeInvalidArgument, op, "invalid multipart field '"+field+"'", err)
	}
	text := strings.TrimSpace(c.PostForm(field + "_text"))
	if text == "" {
		return models.Document{}, utils.E(utils.CodeInvalidArgument, op, field+" is required", nil)
	}
	return models.Document{Name: field, MIMEType: transcode.MIMEText, Text: text}, nil
}

func fileDocument(fh *multipart.FileHeader) (models.Document, error) {
	f, err := fh.Open()
	if err != nil {
		return models.Document{}, utils.E(utils.CodeInternal, "handlers.fileDocument", "failed to open upload", err)
	}
	defer f.Close()
	return transcode.IngestDocument(fh.Filename, fh.Header.Get("Content-Type"), f)
}

// readUpload returns the bytes and declared type of an uploaded file.
func readUpload(fh *multipart.FileHeader, limit int64) ([]byte, string, error) {
	const op = "handlers.readUpload"

	if fh.Size > limit {
		return nil, "", utils.E(utils.CodeInvalidArgument, op, fh.Filename+" is too large", nil)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, "", utils.E(utils.CodeInternal, op, "failed to open upload", err)
	}
	defer f.Close()

	data, err := transcode.ReadAll(f, limit)
	if err != nil {
		return nil, "", err
	}
	return data, fh.Header.Get("Content-Type"), nil
}

// frameMedia decodes an uploaded still and re-encodes it downscaled.
func frameMedia(data []byte, maxWidth int) (*gateway.Media, error) {
	const op = "handlers.frameMedia"

	img, err := capture.DecodeFrame(data)
	if err != nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "frame must be a JPEG, PNG or WebP image", err)
	}
	f, err := capture.EncodeFrame(img, maxWidth)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to encode frame", err)
	}
	return &gateway.Media{MIMEType: f.MIMEType, Data: f.Data}, nil
}
