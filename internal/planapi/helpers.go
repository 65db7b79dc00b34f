package planapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/hicann/launchargs/pkg/argbuf"
)

func writeError(c *echo.Context, status int, errType, msg string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
		},
	})
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg)
}

func writeNotFound(c *echo.Context, msg string) error {
	return writeError(c, http.StatusNotFound, "not_found_error", msg)
}

// writeLayoutError maps a compile failure to a status: malformed nodes are
// the caller's fault, sizes past the address space are unprocessable.
func writeLayoutError(c *echo.Context, err error) error {
	switch {
	case errors.Is(err, argbuf.ErrInvalidArgument):
		return writeBadRequest(c, err.Error())
	case errors.Is(err, argbuf.ErrOverflow):
		return writeError(c, http.StatusUnprocessableEntity, "overflow_error", err.Error())
	default:
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}
