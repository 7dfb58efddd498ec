package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fgeck/landalf/internal/services/devices"
	"github.com/fgeck/landalf/internal/services/wol"
)

const problemContentType = "application/problem+json"

// Problem is an RFC 7807 error body.
type Problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

var problemTypes = map[int]Problem{
	http.StatusBadRequest: {
		Type:  "https://tools.ietf.org/html/rfc7231#section-6.5.1",
		Title: "One or more validation errors occurred.",
	},
	http.StatusNotFound: {
		Type:  "https://tools.ietf.org/html/rfc7231#section-6.5.4",
		Title: "The specified resource was not found.",
	},
	http.StatusMethodNotAllowed: {
		Type:  "https://tools.ietf.org/html/rfc7231#section-6.5.5",
		Title: "Method not allowed.",
	},
	http.StatusConflict: {
		Type:  "https://tools.ietf.org/html/rfc7231#section-6.5.8",
		Title: "The request conflicts with the current state of the resource.",
	},
	http.StatusInternalServerError: {
		Type:  "https://tools.ietf.org/html/rfc7231#section-6.6.1",
		Title: "An error occurred while processing your request.",
	},
}

func writeProblem(w http.ResponseWriter, status int, detail string) {
	p, ok := problemTypes[status]
	if !ok {
		p = Problem{Title: http.StatusText(status)}
	}
	p.Status = status
	p.Detail = detail

	w.Header().Set("Content-Type", problemContentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(p)
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, devices.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, devices.ErrValidation), errors.Is(err, wol.ErrMalformedAddress):
		return http.StatusBadRequest
	case errors.Is(err, devices.ErrShutdownUnavailable):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
