package httpserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/genui/attested-trace-backend/ingest"
	"github.com/genui/attested-trace-backend/interfaces"
	"github.com/genui/attested-trace-backend/metrics"
	"github.com/genui/attested-trace-backend/trace"
)

// attestationFailureMessage is the only attestation error detail clients ever
// see. Specific causes stay in server logs.
const attestationFailureMessage = "attestation rejected"

// RequestError provides structured error information for HTTP responses.
type RequestError struct {
	// StatusCode is the HTTP status code to return.
	StatusCode int

	// Err is the underlying error. Its message is sent to the client.
	Err error
}

// Error returns the message of the underlying error.
func (e *RequestError) Error() string {
	return e.Err.Error()
}

// Handler processes requests of the attested ingestion API. Requests are
// classified by route: a challenge request carries only a key id, an ingestion
// request carries the key id, the attestation object, and the trace payload.
type Handler struct {
	issuer       interfaces.ChallengeIssuer
	verifier     interfaces.AttestationVerifier
	writer       *ingest.Writer
	maxBodyBytes int64
	log          *slog.Logger
}

// NewHandler creates a request handler with the given collaborators.
// maxBodyBytes caps the request body size; oversized requests are rejected
// before any parsing.
func NewHandler(issuer interfaces.ChallengeIssuer, verifier interfaces.AttestationVerifier, writer *ingest.Writer, maxBodyBytes int64, log *slog.Logger) *Handler {
	return &Handler{
		issuer:       issuer,
		verifier:     verifier,
		writer:       writer,
		maxBodyBytes: maxBodyBytes,
		log:          log,
	}
}

type challengeRequest struct {
	KeyID string `json:"key_id"`
}

// HandleChallenge processes challenge issuance requests.
//
// URL format: POST /api/v1/attested/challenge
// Request body: {"key_id": "<base64>"}
// Response: {"outcome":"success","challenge":"<base64>"} or a failure envelope.
func (h *Handler) HandleChallenge(w http.ResponseWriter, r *http.Request) {
	body, reqErr := h.readBody(w, r)
	if reqErr != nil {
		h.writeFailure(w, reqErr)
		return
	}

	var req challengeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeFailure(w, &RequestError{http.StatusBadRequest, fmt.Errorf("invalid JSON body: %w", err)})
		return
	}

	keyID, err := interfaces.NewKeyID(req.KeyID)
	if err != nil {
		h.writeFailure(w, &RequestError{http.StatusBadRequest, err})
		return
	}

	token, err := h.issuer.Issue(keyID)
	if err != nil {
		h.log.Error("Failed to issue challenge", "err", err)
		h.writeFailure(w, &RequestError{http.StatusInternalServerError, errors.New("failed to issue challenge")})
		return
	}

	metrics.ChallengesIssued.Inc()
	h.writeSuccess(w, map[string]any{"challenge": token})
}

// HandleIngest processes attested trace submissions.
//
// URL format: POST /api/v1/attested/traces
// Request body: {"key_id":..., "attestation_object":..., <trace fields>}
// Response: {"outcome":"success","url":"<html url>"} or a failure envelope.
//
// The attestation is checked against the challenge most recently issued for
// the key id, which is consumed in the process: a second submission needs a
// fresh challenge.
func (h *Handler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	body, reqErr := h.readBody(w, r)
	if reqErr != nil {
		h.writeFailure(w, reqErr)
		return
	}

	url, reqErr := h.handleIngest(r, body)
	if reqErr != nil {
		h.writeFailure(w, reqErr)
		return
	}

	h.writeSuccess(w, map[string]any{"url": url})
}

func (h *Handler) handleIngest(r *http.Request, body []byte) (string, *RequestError) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	var payload map[string]any
	if err := decoder.Decode(&payload); err != nil {
		return "", &RequestError{http.StatusBadRequest, fmt.Errorf("invalid JSON body: %w", err)}
	}

	rawKeyID, _ := payload["key_id"].(string)
	keyID, err := interfaces.NewKeyID(rawKeyID)
	if err != nil {
		return "", &RequestError{http.StatusBadRequest, err}
	}

	attestationObject, _ := payload["attestation_object"].(string)
	if attestationObject == "" {
		return "", &RequestError{http.StatusBadRequest, errors.New("attestation_object is required")}
	}

	challenge, ok := h.issuer.Consume(keyID)
	if !ok {
		// no outstanding challenge: never issued, expired, or already used
		h.log.Warn("Ingestion rejected: no outstanding challenge", slog.String("key_id", keyID.String()))
		metrics.AttestationsRejected.Inc()
		return "", &RequestError{http.StatusInternalServerError, errors.New(attestationFailureMessage)}
	}

	if !h.verifier.Verify(keyID, attestationObject, challenge) {
		metrics.AttestationsRejected.Inc()
		return "", &RequestError{http.StatusInternalServerError, errors.New(attestationFailureMessage)}
	}
	metrics.AttestationsAccepted.Inc()

	// the remaining fields are the trace payload
	delete(payload, "key_id")
	delete(payload, "attestation_object")

	tr, err := trace.Normalize(payload)
	if err != nil {
		var verr *trace.ValidationError
		if errors.As(err, &verr) {
			return "", &RequestError{http.StatusBadRequest, verr}
		}
		h.log.Error("Unexpected normalization failure", "err", err)
		return "", &RequestError{http.StatusInternalServerError, errors.New("internal error")}
	}

	url, err := h.writer.Write(r.Context(), tr)
	if err != nil {
		if errors.Is(err, interfaces.ErrStorageWrite) {
			metrics.StorageWriteErrors.Inc()
			return "", &RequestError{http.StatusInternalServerError, errors.New("storage write failed, resubmission is safe")}
		}
		h.log.Error("Unexpected ingestion failure", "err", err)
		return "", &RequestError{http.StatusInternalServerError, errors.New("internal error")}
	}

	metrics.TracesWritten.Inc()
	return url, nil
}

// readBody reads the request body under the configured size cap. Oversized
// requests are rejected with 413 before any parsing happens.
func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, *RequestError) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, &RequestError{http.StatusRequestEntityTooLarge, fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)}
		}
		return nil, &RequestError{http.StatusBadRequest, errors.New("failed to read request body")}
	}
	return body, nil
}

func (h *Handler) writeSuccess(w http.ResponseWriter, fields map[string]any) {
	response := map[string]any{"outcome": "success"}
	for k, v := range fields {
		response[k] = v
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

func (h *Handler) writeFailure(w http.ResponseWriter, reqErr *RequestError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(reqErr.StatusCode)
	if err := json.NewEncoder(w).Encode(map[string]any{
		"outcome": "failure",
		"error":   reqErr.Error(),
	}); err != nil {
		h.log.Error("Failed to encode error response", "err", err)
	}
}
