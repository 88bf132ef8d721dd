package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/chukwumela909/taskhub-server/auth"
	"github.com/chukwumela909/taskhub-server/domain"

	"github.com/shopspring/decimal"
)

type statusResp struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound()):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden()):
		return http.StatusForbidden
	case errors.Is(err, auth.ErrInvalidToken()), errors.Is(err, auth.ErrTokenExpired()):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrInvalidArgument()), errors.Is(err, domain.ErrInvalidOperation()):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidState()), errors.Is(err, domain.ErrAlreadyExists()), errors.Is(err, domain.ErrConflict()):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnavailable()):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeErrorResp(err error, w http.ResponseWriter) {
	if err == nil {
		return
	}

	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		log.Printf("Unexpected error: %v", err)
		msg = "internal server error"
	}
	if domain.IsRetryable(err) {
		w.Header().Set("Retry-After", "1")
	}
	writeResp(statusResp{Status: "error", Message: msg}, code, w)
}

func writeResp(resp any, code int, w http.ResponseWriter) {
	if resp == nil {
		w.WriteHeader(code)
		return
	}
	respBytes, err := json.Marshal(resp)
	if err != nil {
		log.Printf("Error encoding response: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(respBytes); err != nil {
		log.Printf("Error writing response: %v", err)
	}
}

func readReq(req any, r *http.Request, w http.ResponseWriter) error {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeResp(statusResp{Status: "error", Message: "invalid request body"}, http.StatusBadRequest, w)
		return err
	}
	return nil
}

// queryInt returns the integer query parameter or 0 when absent or malformed,
// which the services treat as "use the default".
func queryInt(r *http.Request, name string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return v
}

func queryBool(r *http.Request, name string) (*bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, invalidQuery(name, raw)
	}
	return &v, nil
}

func queryDecimal(r *http.Request, name string) (*decimal.Decimal, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, invalidQuery(name, raw)
	}
	return &v, nil
}

func queryFloat(r *http.Request, name string) (*float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, invalidQuery(name, raw)
	}
	return &v, nil
}

func queryTaskStatus(r *http.Request) (*domain.TaskStatus, error) {
	raw := r.URL.Query().Get("status")
	if raw == "" {
		return nil, nil
	}
	s, err := domain.TaskStatusFromString(raw)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func queryBidStatus(r *http.Request) (*domain.BidStatus, error) {
	raw := r.URL.Query().Get("status")
	if raw == "" {
		return nil, nil
	}
	s, err := domain.BidStatusFromString(raw)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func invalidQuery(name, raw string) error {
	return fmt.Errorf("%w: invalid %s %q", domain.ErrInvalidArgument(), name, raw)
}
