package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/cybersim-labs/cybersim/pkg/store"
)

// mapStoreError maps state-store failures to HTTP error responses.
func mapStoreError(err error) *echo.HTTPError {
	if errors.Is(err, store.ErrCorruptState) {
		slog.Error("Corrupt simulation state", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Simulation state could not be recovered")
	}
	slog.Error("Unexpected store error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
