package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"memberdir/internal/service"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logger := log.Default()
	original := logger.Writer()
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(original) })
	return &buf
}

func TestRespondWithError(t *testing.T) {
	buf := captureLog(t)
	recorder := httptest.NewRecorder()

	respondWithError(recorder, http.StatusBadRequest, ErrInvalidFormData, "", errors.New("multipart: NextPart: EOF"))

	if recorder.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", recorder.Code)
	}
	if body := strings.TrimSpace(recorder.Body.String()); body != ErrInvalidFormData {
		t.Errorf("body = %q, want %q", body, ErrInvalidFormData)
	}
	if out := buf.String(); !strings.Contains(out, ErrInvalidFormData) || !strings.Contains(out, "NextPart") {
		t.Errorf("log = %q, want user message and cause", out)
	}
}

func TestRespondWithMemberError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
		wantLog    bool
	}{
		{"unknown member", service.ErrMemberNotFound, http.StatusNotFound, ErrMemberNotFound, false},
		{"wrapped unknown member", fmt.Errorf("reject 7: %w", service.ErrMemberNotFound), http.StatusNotFound, ErrMemberNotFound, false},
		{"storage failure", errors.New("database is locked"), http.StatusInternalServerError, "Failed to delete member", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureLog(t)
			recorder := httptest.NewRecorder()

			respondWithMemberError(recorder, "Failed to delete member", "Error deleting member", tt.err)

			if recorder.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", recorder.Code, tt.wantStatus)
			}
			if body := strings.TrimSpace(recorder.Body.String()); body != tt.wantBody {
				t.Errorf("body = %q, want %q", body, tt.wantBody)
			}
			if logged := strings.Contains(buf.String(), "Error deleting member"); logged != tt.wantLog {
				t.Errorf("logged = %v, want %v (log %q)", logged, tt.wantLog, buf.String())
			}
		})
	}
}
