package httputil

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/medsupply/medsupply-backend/pkg/errors"
)

// Response is the envelope every endpoint answers with
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// ErrorBody represents an error in the response
type ErrorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// Meta carries list pagination
type Meta struct {
	Page       int   `json:"page,omitempty"`
	PerPage    int   `json:"per_page,omitempty"`
	Total      int64 `json:"total,omitempty"`
	TotalPages int   `json:"total_pages,omitempty"`
}

// NewMeta builds pagination metadata
func NewMeta(page, perPage int, total int64) *Meta {
	pages := int((total + int64(perPage) - 1) / int64(perPage))
	return &Meta{Page: page, PerPage: perPage, Total: total, TotalPages: pages}
}

func write(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func succeeded(status int) bool {
	return status >= 200 && status < 300
}

// JSON sends data in the envelope
func JSON(w http.ResponseWriter, statusCode int, data interface{}) {
	write(w, statusCode, Response{Success: succeeded(statusCode), Data: data})
}

// JSONWithMeta sends a page of data with its pagination
func JSONWithMeta(w http.ResponseWriter, statusCode int, data interface{}, meta *Meta) {
	write(w, statusCode, Response{Success: succeeded(statusCode), Data: data, Meta: meta})
}

// Created sends a 201 Created response
func Created(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusCreated, data)
}

// NoContent sends a 204 No Content response
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Error sends err in the envelope. Anything that is not an AppError is
// reported as INTERNAL_ERROR without leaking its text.
func Error(w http.ResponseWriter, err error) {
	ErrorWithData(w, err, nil)
}

// ErrorWithData sends an error that also carries a data payload, e.g. the
// session snapshot of a failed import. A retry_after_seconds detail is
// mirrored into the Retry-After header.
func ErrorWithData(w http.ResponseWriter, err error, data interface{}) {
	var appErr *errors.AppError
	if !errors.As(err, &appErr) {
		appErr = errors.Internal("an unexpected error occurred")
	}

	if v, ok := appErr.Details["retry_after_seconds"]; ok {
		w.Header().Set("Retry-After", v)
	}
	write(w, appErr.StatusCode, Response{
		Data: data,
		Error: &ErrorBody{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		},
	})
}

// DecodeJSON decodes a JSON request body into v
func DecodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if err == io.EOF {
			return errors.BadRequest("request body is required")
		}
		return errors.BadRequest("invalid JSON body")
	}
	return nil
}

// Pagination reads page and per_page query parameters.
// Page defaults to 1, per_page to 20 and is capped at 100.
func Pagination(r *http.Request) (page, perPage int) {
	q := r.URL.Query()

	page, _ = strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ = strconv.Atoi(q.Get("per_page"))
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return page, perPage
}
