package engine

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// Response is the value returned by route handlers. The router renders it
// after the handler returns.
type Response interface {
	Write(http.ResponseWriter, *http.Request)
}

type jsonResponse struct {
	status int
	body   any
}

func (j *jsonResponse) Write(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(j.status)
	json.NewEncoder(w).Encode(j.body)
}

// JSON renders the given value as a 200 response.
func JSON(body any) Response { return &jsonResponse{status: http.StatusOK, body: body} }

// JSONStatus renders the given value with an explicit status code.
func JSONStatus(status int, body any) Response { return &jsonResponse{status: status, body: body} }

type emptyResponse struct{ status int }

func (e *emptyResponse) Write(w http.ResponseWriter, r *http.Request) { w.WriteHeader(e.status) }

// NoContent returns an empty 204 response.
func NoContent() Response { return &emptyResponse{status: http.StatusNoContent} }

type redirectResponse struct {
	url    string
	status int
}

func (rr *redirectResponse) Write(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, rr.url, rr.status)
}

func Redirect(url string, status int) Response { return &redirectResponse{url: url, status: status} }

type errorResponse struct {
	status  int
	message string
}

func (e *errorResponse) Write(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.status)
	json.NewEncoder(w).Encode(map[string]string{"error": e.message})
}

// ClientErrorf renders a 4xx error with a message safe to show to the caller.
func ClientErrorf(status int, format string, args ...any) Response {
	return &errorResponse{status: status, message: fmt.Sprintf(format, args...)}
}

// Error logs the given error and renders a generic 500.
// Handlers should use it for anything the caller can't correct.
func Error(err error) Response {
	slog.Error("internal server error", "error", err)
	return &errorResponse{status: http.StatusInternalServerError, message: "internal error - please try again later"}
}
