package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dreamgate/dreamgate/internal/version"
)

// InfoHandler serves the service banner on the root path.
type InfoHandler struct {
	logger *slog.Logger
}

// NewInfoHandler creates the info handler.
func NewInfoHandler(log *slog.Logger) *InfoHandler {
	return &InfoHandler{logger: log.With(slog.String("handler", "info"))}
}

// Register mounts GET /.
func (h *InfoHandler) Register(e *echo.Echo) {
	e.GET("/", h.Info)
}

// Info returns service metadata and the endpoint map.
func (h *InfoHandler) Info(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"service": "dreamgate",
		"status":  "running",
		"version": version.GetInfo(),
		"endpoints": map[string]string{
			"images": "/v1/images/generations",
			"videos": "/v1/videos/generations",
			"models": "/v1/models",
			"token":  "/token",
			"health": "/ping",
		},
	})
}
