package handlers

import (
	"errors"

	"github.com/labstack/echo/v4"
	"github.com/welldanyogia/webrana-confchat/internal/api/middleware"
	"github.com/welldanyogia/webrana-confchat/internal/api/response"
	apperrors "github.com/welldanyogia/webrana-confchat/internal/errors"
	"github.com/welldanyogia/webrana-confchat/internal/logger"
	"github.com/welldanyogia/webrana-confchat/internal/services"
)

// PaperHandler serves the paper metadata shown in a conversation header
type PaperHandler struct {
	chat      services.ChatService
	secLogger *logger.SecurityLogger
}

// NewPaperHandler creates a new PaperHandler
func NewPaperHandler(chat services.ChatService, secLogger *logger.SecurityLogger) *PaperHandler {
	return &PaperHandler{chat: chat, secLogger: secLogger}
}

// Get handles GET /api/papers/:paperId
func (h *PaperHandler) Get(c echo.Context) error {
	paperID := c.Param("paperId")

	paper, err := h.chat.GetPaper(c.Request().Context(), middleware.Viewer(c), paperID)
	if err != nil {
		if errors.Is(err, apperrors.ErrForbidden) {
			h.secLogger.AccessDenied(c.RealIP(), viewerID(c), paperID)
		}
		return response.Error(c, err)
	}
	return response.Paper(c, paper)
}
