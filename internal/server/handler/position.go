package handler

import (
	"log/slog"
	"net/http"

	"github.com/gasvaultlabs/gasvault/internal/service"
)

// PositionHandler serves position lookups.
type PositionHandler struct {
	vault  *service.Vault
	logger *slog.Logger
}

// NewPositionHandler creates a PositionHandler for the given vault.
func NewPositionHandler(vault *service.Vault, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		vault:  vault,
		logger: logger.With(slog.String("handler", "position")),
	}
}

// Get returns a position with its derived available-unit count.
// GET /api/positions/{id}
func (h *PositionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "position id must be a positive integer")
		return
	}

	view, err := h.vault.GetPosition(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
