package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dreamgate/dreamgate/internal/dreamina"
)

// TokenHandler serves session-token maintenance endpoints: liveness check,
// balance query and daily credit claim for every token in the pool.
type TokenHandler struct {
	client *dreamina.Client
	logger *slog.Logger
}

// NewTokenHandler creates the token handler.
func NewTokenHandler(log *slog.Logger, client *dreamina.Client) *TokenHandler {
	return &TokenHandler{
		client: client,
		logger: log.With(slog.String("handler", "token")),
	}
}

// Register mounts the /token routes.
func (h *TokenHandler) Register(e *echo.Echo) {
	group := e.Group("/token")
	group.POST("/check", h.Check)
	group.POST("/points", h.Points)
	group.POST("/receive", h.Receive)
}

type checkRequest struct {
	Token string `json:"token"`
}

type checkResponse struct {
	Live bool `json:"live"`
}

// Check reports whether a single session token is still accepted.
func (h *TokenHandler) Check(c echo.Context) error {
	var req checkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "token is required")
	}
	return c.JSON(http.StatusOK, checkResponse{
		Live: h.client.TokenLive(c.Request().Context(), req.Token),
	})
}

type pointsEntry struct {
	Token  string          `json:"token"`
	Points dreamina.Credit `json:"points"`
}

// Points returns the credit balance per token in the Authorization pool.
func (h *TokenHandler) Points(c echo.Context) error {
	tokens := dreamina.TokenSplit(c.Request().Header.Get(echo.HeaderAuthorization))
	if len(tokens) == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "authorization header with a session token is required")
	}

	entries := make([]pointsEntry, 0, len(tokens))
	for _, token := range tokens {
		credit, err := h.client.GetCredit(c.Request().Context(), token)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadGateway, err.Error())
		}
		entries = append(entries, pointsEntry{Token: token, Points: credit})
	}
	return c.JSON(http.StatusOK, entries)
}

type receiveEntry struct {
	Token    string          `json:"token"`
	Credits  dreamina.Credit `json:"credits"`
	Received bool            `json:"received"`
	Error    string          `json:"error,omitempty"`
}

// Receive claims the daily credit grant for every exhausted token in the
// pool. Per-token claim failures are reported in the entry, not as an HTTP
// error, so one dead token does not hide the rest.
func (h *TokenHandler) Receive(c echo.Context) error {
	tokens := dreamina.TokenSplit(c.Request().Header.Get(echo.HeaderAuthorization))
	if len(tokens) == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "authorization header with a session token is required")
	}

	ctx := c.Request().Context()
	entries := make([]receiveEntry, 0, len(tokens))
	for _, token := range tokens {
		credit, err := h.client.GetCredit(ctx, token)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadGateway, err.Error())
		}
		entry := receiveEntry{Token: token, Credits: credit}
		if credit.TotalCredit <= 0 {
			if _, err := h.client.ReceiveCredit(ctx, token); err != nil {
				h.logger.Warn("credit claim failed", slog.Any("error", err))
				entry.Error = err.Error()
			} else if updated, err := h.client.GetCredit(ctx, token); err == nil {
				entry.Credits = updated
				entry.Received = true
			}
		}
		entries = append(entries, entry)
	}
	return c.JSON(http.StatusOK, entries)
}
