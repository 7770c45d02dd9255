package server

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/vitalvas/canonsig/hashing"
)

const headerContentDigest = "Content-Digest"

// Content-Digest errors.
var (
	ErrDigestMismatch    = errors.New("server: content digest does not match body")
	ErrMalformedDigest   = errors.New("server: malformed Content-Digest header")
	ErrUnsupportedDigest = errors.New("server: no supported Content-Digest algorithm")
)

// digestAlgorithms maps Content-Digest algorithm keys to digest engine
// algorithms.
var digestAlgorithms = map[string]hashing.Algorithm{
	"sha-256": hashing.SHA256,
	"sha-512": hashing.SHA512,
}

// contentDigest renders the Content-Digest field value for body using
// sha-256.
func contentDigest(body []byte) (string, error) {
	d, err := hashing.Compute(body, hashing.SHA256)
	if err != nil {
		return "", err
	}

	return "sha-256=:" + base64.StdEncoding.EncodeToString(d.Sum) + ":", nil
}

// verifyContentDigest checks body against the first entry of header whose
// algorithm is supported. Entries with unknown algorithms are skipped.
func verifyContentDigest(header string, body []byte) error {
	for item := range strings.SplitSeq(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(item), "=")
		if !ok {
			return ErrMalformedDigest
		}

		alg, known := digestAlgorithms[strings.ToLower(strings.TrimSpace(key))]
		if !known {
			continue
		}

		value = strings.TrimSpace(value)
		if len(value) < 2 || value[0] != ':' || value[len(value)-1] != ':' {
			return ErrMalformedDigest
		}

		want, err := base64.StdEncoding.DecodeString(value[1 : len(value)-1])
		if err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedDigest, err)
		}

		got, err := hashing.Compute(body, alg)
		if err != nil {
			return err
		}

		if !got.Equal(hashing.Digest{Algorithm: alg, Sum: want}) {
			return ErrDigestMismatch
		}

		return nil
	}

	return ErrUnsupportedDigest
}

// ContentDigestMiddleware verifies the Content-Digest header of requests
// that carry one and rejects mismatches with 400. Requests without the
// header pass through.
func ContentDigestMiddleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get(headerContentDigest)
			if header == "" || r.Body == nil {
				next.ServeHTTP(w, r)
				return
			}

			body, ok := readBody(w, r)
			if !ok {
				return
			}

			if err := verifyContentDigest(header, body); err != nil {
				writeError(w, http.StatusBadRequest, codeDigest, err.Error())
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))

			next.ServeHTTP(w, r)
		})
	}
}
