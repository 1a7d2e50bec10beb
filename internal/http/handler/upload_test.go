package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestParseFlag(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"", false},
		{"0", false},
		{"1", true},
		{" 1 ", true},
		{"2", true},
		{"-1", true},
		{"true", false},
		{"yes", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, parseFlag(tt.in), "input %q", tt.in)
	}
}

func TestRespond_DefaultsToStatusText(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	respond(c, http.StatusGone, "")

	assert.Equal(t, http.StatusGone, w.Code)
	assert.JSONEq(t, `{"code":410,"status":"Gone"}`, w.Body.String())

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	respond(c, http.StatusBadRequest, MessageInvalidFile)
	assert.JSONEq(t, `{"code":400,"status":"Invalid file"}`, w.Body.String())
}
