package handlers

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aifoundry/aifoundry/server/internal/apperr"
)

func TestStreamWriter(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/x", nil)

	tests := []struct {
		name       string
		writes     []string
		err        error
		wantStatus int
		wantBody   string
		wantType   string
	}{
		{"empty success", nil, nil, http.StatusOK, "", "text/plain; charset=utf-8"},
		{"output then success", []string{"a", "b"}, nil, http.StatusOK, "ab", "text/plain; charset=utf-8"},
		{"error before output", nil, apperr.InvalidConfiguration("no key"), http.StatusPreconditionFailed, `{"error":"no key"}` + "\n", "application/json"},
		{"error after output", []string{"pulling"}, errors.New("lost connection"), http.StatusOK, "pulling\nlost connection", "text/plain; charset=utf-8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			sw := newStreamWriter(w)
			for _, s := range tt.writes {
				io.WriteString(sw, s)
			}
			sw.finish(req, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantBody, w.Body.String())
			assert.Equal(t, tt.wantType, w.Header().Get("Content-Type"))
			if len(tt.writes) > 0 {
				assert.True(t, w.Flushed)
			}
		})
	}
}
