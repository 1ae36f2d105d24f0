package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dreamgate/dreamgate/internal/dreamina"
	"github.com/dreamgate/dreamgate/internal/region"
)

// ModelsHandler serves the OpenAI-style model listing.
type ModelsHandler struct {
	logger *slog.Logger
}

// NewModelsHandler creates the models handler.
func NewModelsHandler(log *slog.Logger) *ModelsHandler {
	return &ModelsHandler{logger: log.With(slog.String("handler", "models"))}
}

// Register mounts GET /v1/models.
func (h *ModelsHandler) Register(e *echo.Echo) {
	e.GET("/v1/models", h.List)
}

type modelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

type modelList struct {
	Object string       `json:"object"`
	Data   []modelEntry `json:"data"`
}

// List returns the models available for the caller's region. The region is
// derived from the Authorization token when present, defaulting to the
// mainland catalog.
func (h *ModelsHandler) List(c echo.Context) error {
	info := region.Info{IsCN: true}
	if tokens := dreamina.TokenSplit(c.Request().Header.Get(echo.HeaderAuthorization)); len(tokens) > 0 {
		info = region.FromToken(tokens[0])
	}

	images, videos := dreamina.ListModels(info)
	entries := make([]modelEntry, 0, len(images)+len(videos))
	for _, id := range images {
		entries = append(entries, modelEntry{ID: id, Object: "model", OwnedBy: "dreamina"})
	}
	for _, id := range videos {
		entries = append(entries, modelEntry{ID: id, Object: "model", OwnedBy: "dreamina"})
	}
	return c.JSON(http.StatusOK, modelList{Object: "list", Data: entries})
}
