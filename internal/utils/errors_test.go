package utils

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorMessageShapes(t *testing.T) {
	inner := errors.New("boom")
	assert.Equal(t, "Op: msg: boom", E(CodeInternal, "Op", "msg", inner).Error())
	assert.Equal(t, "Op: msg", E(CodeInternal, "Op", "msg", nil).Error())
	assert.Equal(t, "Op: boom", E(CodeInternal, "Op", "", inner).Error())
	assert.Equal(t, "msg", E(CodeInternal, "", "msg", nil).Error())
}

func TestCodeHelpersSeeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", E(CodeInvalidArgument, "Op", "bad input", nil))

	assert.True(t, IsCode(err, CodeInvalidArgument))
	assert.False(t, IsCode(err, CodeInternal))
	assert.Equal(t, CodeInvalidArgument, CodeOf(err))
	assert.Equal(t, "bad input", SafeMessage(err))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[Code]int{
		CodeUnauthorized:       http.StatusUnauthorized,
		CodeForbidden:          http.StatusForbidden,
		CodeNotFound:           http.StatusNotFound,
		CodeFailedPrecondition: http.StatusConflict,
		CodeUnavailable:        http.StatusServiceUnavailable,
		CodeTimeout:            http.StatusGatewayTimeout,
		CodeInternal:           http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, HTTPStatus(E(code, "", "", nil)), string(code))
	}
	assert.Equal(t, http.StatusNotFound, HTTPStatus(ErrNotFound))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("x")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("x")))
}
