// Package handlers implements the HTTP API of the face indexer.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/kozaktomas/face-indexer/internal/constants"
)

const errInvalidRequestBody = "invalid request body"

var logLineBreaks = strings.NewReplacer("\n", "", "\r", "")

// sanitizeForLog strips line breaks from client-supplied values before they are logged.
func sanitizeForLog(s string) string {
	return logLineBreaks.Replace(s)
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status string `json:"status"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

// decodeJSON reads at most constants.MaxRequestSize bytes of JSON into v and
// rejects fields v does not declare.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, constants.MaxRequestSize))
	dec.DisallowUnknownFields()
	err := dec.Decode(v)
	if err == nil {
		return nil
	}
	if tooLarge, ok := errors.AsType[*http.MaxBytesError](err); ok {
		return fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
	}
	return fmt.Errorf("%s: %w", errInvalidRequestBody, err)
}

// HealthCheck reports that the process is serving requests.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}
