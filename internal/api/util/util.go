package util

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/volo-project/volo/internal/artifact"
	"github.com/volo-project/volo/internal/media"
)

// ErrorToHTTP translates a domain error into the HTTP error the gateway
// should respond with. The error message is passed through verbatim so
// the HTTP caller sees the same reason a socket listener would.
func ErrorToHTTP(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, media.ErrInvalidURL),
		errors.Is(err, media.ErrInvalidFormat),
		errors.Is(err, media.ErrUnsupportedSource),
		errors.Is(err, artifact.ErrInvalidRequest):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, artifact.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, media.ErrUpstream) && strings.Contains(err.Error(), "403"):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// ApplyConversion applies a converter function to each of the models
// provided, returning the slice of converted values. It will explode if
// the models slice is nil.
func ApplyConversion[T any, K any](models []T, converter func(T) K) []K {
	dtos := make([]K, 0, len(models))
	for _, v := range models {
		dtos = append(dtos, converter(v))
	}

	return dtos
}
