package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/vitalvas/canonsig/canonical"
	"github.com/vitalvas/canonsig/envelope"
	"github.com/vitalvas/canonsig/keys"
)

const headerRecordCID = "X-Record-CID"

type publicKeyResponse struct {
	KeyID     string `json:"key_id"`
	PublicKey []byte `json:"public_key"`
	PEM       string `json:"pem"`
}

type rotateRequest struct {
	Bits int `json:"bits"`
}

type healthResponse struct {
	Status string `json:"status"`
	KeyID  string `json:"key_id,omitempty"`
}

// readBody reads the request body, writing a 413 or 400 response on
// failure.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, codeTooLarge, "request body too large")
			return nil, false
		}

		writeError(w, http.StatusBadRequest, codeBadRequest, "cannot read request body")

		return nil, false
	}

	return body, true
}

func (s *Server) handleSign(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	record, err := canonical.ParseRecord(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeEncoding, err.Error())
		return
	}

	env, err := s.signer.Sign(r.Context(), record)
	if err != nil {
		if errors.Is(err, canonical.ErrEncoding) {
			writeError(w, http.StatusBadRequest, codeEncoding, err.Error())
			return
		}

		s.logger.ErrorContext(r.Context(), "sign request failed",
			slog.String("request_id", RequestIDFromContext(r.Context())),
			slog.Any("error", err),
		)

		writeError(w, http.StatusInternalServerError, codeSigning, "record could not be signed")

		return
	}

	if id, err := env.RecordCID(); err == nil {
		w.Header().Set(headerRecordCID, id.String())
	}

	writeJSON(w, http.StatusOK, env)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	out := envelope.VerifyJSON(body)

	s.logger.InfoContext(r.Context(), "envelope verified",
		slog.String("request_id", RequestIDFromContext(r.Context())),
		slog.String("result", out.Result.String()),
	)

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePublicKey(w http.ResponseWriter, _ *http.Request) {
	kp, err := s.keys.Current()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, codeInternal, "no signing key loaded")
		return
	}

	der, err := keys.ExportPublicKey(kp)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal, "public key could not be exported")
		return
	}

	writeJSON(w, http.StatusOK, publicKeyResponse{
		KeyID:     kp.ID(),
		PublicKey: der,
		PEM:       string(keys.EncodePublicKeyPEM(der)),
	})
}

func (s *Server) handleRotate(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	var req rotateRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "invalid rotate request")
			return
		}
	}

	kp, err := s.keys.Rotate(r.Context(), req.Bits)
	if err != nil {
		if errors.Is(err, keys.ErrKeyGeneration) {
			writeError(w, http.StatusBadRequest, codeKeyGeneration, err.Error())
			return
		}

		writeError(w, http.StatusInternalServerError, codeInternal, "key rotation failed")

		return
	}

	der, err := keys.ExportPublicKey(kp)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal, "public key could not be exported")
		return
	}

	writeJSON(w, http.StatusOK, publicKeyResponse{
		KeyID:     kp.ID(),
		PublicKey: der,
		PEM:       string(keys.EncodePublicKeyPEM(der)),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	id := s.keys.KeyID()
	if id == "" {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "no_key"})
		return
	}

	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", KeyID: id})
}

func (s *Server) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound, codeNotFound, http.StatusText(http.StatusNotFound))
}
