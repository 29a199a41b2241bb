package handlers

import (
	"net/http"

	"guardget/middleware"
	"guardget/models"
	"guardget/services/transfer"
	"guardget/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TransferHandler exposes the transfer state machine.
type TransferHandler struct {
	Coordinator transfer.TransferCoordinator
}

func NewTransferHandler(coordinator transfer.TransferCoordinator) *TransferHandler {
	return &TransferHandler{Coordinator: coordinator}
}

type sessionInput struct {
	SessionToken string `json:"sessionToken" binding:"required"`
}

type verifyInput struct {
	SessionToken string `json:"sessionToken" binding:"required"`
	Code         string `json:"code" binding:"required"`
}

// InitiateTransferHandler starts a transfer of one of the caller's devices.
func (h *TransferHandler) InitiateTransferHandler(c *gin.Context) {
	var req models.InitiateTransferRequest
	if !bindJSON(c, &req) {
		return
	}
	req.FromUserID = middleware.CurrentUserID(c)

	session, err := h.Coordinator.Initiate(c.Request.Context(), req)
	if err != nil {
		getLogger(c).Info("initiate transfer refused", zap.String("deviceId", req.DeviceID), zap.Error(err))
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

// VerifyTransferOtpHandler completes a transfer with the code sent to the owner.
func (h *TransferHandler) VerifyTransferOtpHandler(c *gin.Context) {
	var input verifyInput
	if !bindJSON(c, &input) {
		return
	}
	result, err := h.Coordinator.VerifyOtp(c.Request.Context(), middleware.CurrentUserID(c), input.SessionToken, input.Code)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"completed": true, "transfer": result})
}

func (h *TransferHandler) ResendTransferOtpHandler(c *gin.Context) {
	var input sessionInput
	if !bindJSON(c, &input) {
		return
	}
	result, err := h.Coordinator.ResendOtp(c.Request.Context(), middleware.CurrentUserID(c), input.SessionToken)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": true, "resend": result})
}

func (h *TransferHandler) CancelTransferHandler(c *gin.Context) {
	var input sessionInput
	if !bindJSON(c, &input) {
		return
	}
	result, err := h.Coordinator.Cancel(c.Request.Context(), middleware.CurrentUserID(c), input.SessionToken)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rejected": true, "transfer": result})
}

func (h *TransferHandler) TransferStatusHandler(c *gin.Context) {
	var input sessionInput
	if !bindJSON(c, &input) {
		return
	}
	view, err := h.Coordinator.Status(c.Request.Context(), middleware.CurrentUserID(c), input.SessionToken)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
