package server

import (
	"errors"
	"net/http"

	"github.com/jonathan/candidate-research/internal/export"
	"github.com/jonathan/candidate-research/internal/research"
	"github.com/jonathan/candidate-research/internal/types"
)

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		formatErr *export.UnsupportedFormatError
		stateErr  *research.InvalidStateError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case types.IsValidationError(err), errors.As(err, &formatErr):
		return http.StatusBadRequest
	case errors.As(err, &stateErr):
		return http.StatusConflict
	case errors.Is(err, research.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Error  string             `json:"error"`
	Fields []types.FieldError `json:"fields,omitempty"`
}

func newErrorResponse(err error) ErrorResponse {
	resp := ErrorResponse{Error: err.Error()}
	var ve *types.ValidationError
	if errors.As(err, &ve) {
		resp.Fields = ve.Fields
	}
	return resp
}
