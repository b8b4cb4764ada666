package handler

import (
	"agency-ledger/internal/adapter/http/dto"
	"agency-ledger/internal/core/ports"
	"agency-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// SettingsHandler serves the wallet settings document.
type SettingsHandler struct {
	settingsSvc ports.SettingsService
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(settingsSvc ports.SettingsService) *SettingsHandler {
	return &SettingsHandler{settingsSvc: settingsSvc}
}

// Get handles GET /api/v1/wallet-settings.
func (h *SettingsHandler) Get(c *gin.Context) {
	response.OK(c, h.settingsSvc.Get(c.Request.Context()))
}

// Update handles PUT /api/v1/wallet-settings.
func (h *SettingsHandler) Update(c *gin.Context) {
	var req dto.WalletSettingsUpdate
	if !bindJSON(c, &req) {
		return
	}

	settings, err := h.settingsSvc.Update(c.Request.Context(), req.Patch())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, settings)
}
