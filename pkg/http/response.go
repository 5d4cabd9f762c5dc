package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// HeaderCache tells clients whether a body was served from the response cache.
const HeaderCache = "X-Cache"

const (
	CacheHit  = "HIT"
	CacheMiss = "MISS"
)

// DataResponse writes the standard envelope with the given status.
func DataResponse(c echo.Context, statusCode int, data interface{}) error {
	return c.JSON(statusCode, APIResponse{
		Status:  statusCode,
		Message: http.StatusText(statusCode),
		Data:    data,
	})
}

// MarshalEnvelope encodes a 200 envelope stamped with its generation time, so a body
// replayed from cache still says when it was computed.
func MarshalEnvelope(data interface{}) ([]byte, error) {
	now := time.Now().UTC()
	return json.Marshal(APIResponse{
		Status:      http.StatusOK,
		Message:     http.StatusText(http.StatusOK),
		Data:        data,
		GeneratedAt: &now,
	})
}

// BlobResponse writes an encoded 200 envelope. cacheState is HIT, MISS or empty when
// no cache is configured.
func BlobResponse(c echo.Context, body []byte, cacheState string) error {
	if cacheState != "" {
		c.Response().Header().Set(HeaderCache, cacheState)
	}
	return c.JSONBlob(http.StatusOK, body)
}

// BadRequestResponse writes bad request error.
func BadRequestResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusBadRequest, data)
}

// InternalServerErrorResponse writes internal server error.
func InternalServerErrorResponse(c echo.Context) error {
	return DataResponse(c, http.StatusInternalServerError, "Something went wrong")
}

// AppErrorResponse writes application error response.
func AppErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return DataResponse(c, appErr.Status, []*AppError{appErr})
	}
	return InternalServerErrorResponse(c)
}
