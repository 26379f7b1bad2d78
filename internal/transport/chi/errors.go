package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/nerprompt/internal/domain"
	"github.com/kailas-cloud/nerprompt/internal/logger"
)

// Transport-level error codes; domain errors use their domain.ErrorKind.
const (
	codeBadRequest       domain.ErrorKind = "bad_request"
	codeUnauthorized     domain.ErrorKind = "unauthorized"
	codePayloadTooLarge  domain.ErrorKind = "payload_too_large"
	codeNotFound         domain.ErrorKind = "not_found"
	codeMethodNotAllowed domain.ErrorKind = "method_not_allowed"
)

// ErrorResponse is the JSON body of every error.
type ErrorResponse struct {
	Code    domain.ErrorKind `json:"code"`
	Message string           `json:"message"`
}

// kindStatus maps error kinds to HTTP status codes.
var kindStatus = map[domain.ErrorKind]int{
	domain.KindInvalidInput:       http.StatusBadRequest,
	domain.KindCollectionNotFound: http.StatusNotFound,
	domain.KindSchemaMismatch:     http.StatusConflict,
	domain.KindRateLimited:        http.StatusTooManyRequests,
	domain.KindEmbeddingFailure:   http.StatusBadGateway,
	domain.KindTimeout:            http.StatusGatewayTimeout,
	domain.KindPartialIngestion:   http.StatusMultiStatus,
	domain.KindInternal:           http.StatusInternalServerError,
}

// StatusOf returns the HTTP status for an error.
func StatusOf(err error) int {
	if s, ok := kindStatus[domain.KindOf(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// clientMessage hides internals: caller-caused errors are returned verbatim,
// everything else only by its kind.
func clientMessage(err error) string {
	switch domain.KindOf(err) {
	case domain.KindInvalidInput, domain.KindCollectionNotFound, domain.KindSchemaMismatch:
		return err.Error()
	case domain.KindRateLimited:
		return domain.ErrRateLimited.Error()
	case domain.KindEmbeddingFailure:
		return domain.ErrEmbeddingFailure.Error()
	case domain.KindTimeout:
		return "deadline exceeded"
	default:
		return "internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code domain.ErrorKind, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())
	kind := domain.KindOf(err)
	status := StatusOf(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.String("kind", string(kind)), zap.Error(err))
	} else {
		log.Warn("domain error", zap.String("kind", string(kind)), zap.Error(err))
	}
	writeError(w, status, kind, clientMessage(err))
}

func (s *Server) decodeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, codePayloadTooLarge, "request body too large")
		return
	}
	writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
}
