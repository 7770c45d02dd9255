package server

import (
	"bytes"
	"encoding/json"
	"net/http"
)

// Error codes returned in the "code" field of error responses.
const (
	codeBadRequest       = "bad_request"
	codeEncoding         = "encoding_error"
	codeSigning          = "signing_error"
	codeKeyGeneration    = "key_generation_error"
	codeTooLarge         = "request_too_large"
	codeUnsupportedMedia = "unsupported_media_type"
	codeDigest           = "content_digest_error"
	codeNotFound         = "not_found"
	codeInternal         = "internal_error"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON encodes v as JSON and writes it with the given status code and
// a Content-Digest header. If encoding fails, a 500 is written instead.
func writeJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if digest, err := contentDigest(buf.Bytes()); err == nil {
		w.Header().Set(headerContentDigest, digest)
	}

	w.WriteHeader(code)
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
