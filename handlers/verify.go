package handlers

import (
	"net/http"

	"guardget/models"
	"guardget/services/verification"
	"guardget/utils"

	"github.com/gin-gonic/gin"
)

// VerifyHandler serves the public device status lookup.
type VerifyHandler struct {
	Service verification.VerificationService
}

func NewVerifyHandler(svc verification.VerificationService) *VerifyHandler {
	return &VerifyHandler{Service: svc}
}

// VerifyDeviceStatusHandler always answers 200 unless storage is unavailable.
func (h *VerifyHandler) VerifyDeviceStatusHandler(c *gin.Context) {
	kind := models.ParseIdentifierKind(c.Query("type"))
	result, err := h.Service.Lookup(c.Request.Context(), c.Query("identifier"), kind)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
