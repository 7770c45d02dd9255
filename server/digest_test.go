package server

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sha256Field(body string) string {
	sum := sha256.Sum256([]byte(body))
	return "sha-256=:" + base64.StdEncoding.EncodeToString(sum[:]) + ":"
}

func sha512Field(body string) string {
	sum := sha512.Sum512([]byte(body))
	return "sha-512=:" + base64.StdEncoding.EncodeToString(sum[:]) + ":"
}

func TestContentDigest(t *testing.T) {
	got, err := contentDigest([]byte(`{"hello":"world"}`))
	require.NoError(t, err)
	assert.Equal(t, sha256Field(`{"hello":"world"}`), got)
}

func TestVerifyContentDigest(t *testing.T) {
	body := `{"a":1}`

	tests := []struct {
		name   string
		header string
		want   error
	}{
		{name: "sha-256", header: sha256Field(body)},
		{name: "sha-512", header: sha512Field(body)},
		{name: "upper case key", header: strings.Replace(sha256Field(body), "sha-256", "SHA-256", 1)},
		{name: "unknown first", header: "md5=:AAAA:, " + sha256Field(body)},
		{name: "mismatch", header: sha256Field(`{"a":2}`), want: ErrDigestMismatch},
		{name: "only unknown", header: "md5=:AAAA:", want: ErrUnsupportedDigest},
		{name: "no equals", header: "sha-256", want: ErrMalformedDigest},
		{name: "no colons", header: "sha-256=abc", want: ErrMalformedDigest},
		{name: "bad base64", header: "sha-256=:!!!:", want: ErrMalformedDigest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := verifyContentDigest(tt.header, []byte(body))
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestContentDigestMiddleware(t *testing.T) {
	var seen string

	h := ContentDigestMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seen = string(b)
		w.WriteHeader(http.StatusOK)
	}))

	body := `{"a":1}`

	t.Run("no header passes through", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, body, seen)
	})

	t.Run("matching digest keeps body readable", func(t *testing.T) {
		seen = ""

		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		req.Header.Set(headerContentDigest, sha256Field(body))

		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, body, seen)
	})

	t.Run("mismatch", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		req.Header.Set(headerContentDigest, sha256Field("other"))

		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), codeDigest)
	})
}

func TestResponsesCarryContentDigest(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})

	assert.Equal(t, sha256Field(w.Body.String()), w.Header().Get(headerContentDigest))
}
