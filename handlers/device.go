package handlers

import (
	"net/http"
	"strings"

	"guardget/middleware"
	"guardget/models"
	"guardget/services/audit"
	"guardget/services/registry"
	"guardget/utils"

	"github.com/gin-gonic/gin"
)

// DeviceHandler serves the owner's view of their devices.
type DeviceHandler struct {
	Registry registry.DeviceRegistry
	Audit    audit.AuditService
}

func NewDeviceHandler(reg registry.DeviceRegistry, auditSvc audit.AuditService) *DeviceHandler {
	return &DeviceHandler{Registry: reg, Audit: auditSvc}
}

func (h *DeviceHandler) RegisterDeviceHandler(c *gin.Context) {
	var reg models.DeviceRegistration
	if !bindJSON(c, &reg) {
		return
	}
	device, err := h.Registry.Register(c.Request.Context(), middleware.CurrentUserID(c), reg)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, device)
}

func (h *DeviceHandler) ListDevicesHandler(c *gin.Context) {
	devices, err := h.Registry.ListByOwner(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"devices": devices})
}

// ownedDevice loads the path device and checks it belongs to the caller.
func (h *DeviceHandler) ownedDevice(c *gin.Context) (*models.Device, bool) {
	device, err := h.Registry.Lookup(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return nil, false
	}
	if device.OwnerID != middleware.CurrentUserID(c) {
		utils.RespondError(c, models.ErrNotOwner)
		return nil, false
	}
	return device, true
}

func (h *DeviceHandler) GetDeviceHandler(c *gin.Context) {
	device, ok := h.ownedDevice(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, device)
}

// ReportStatusHandler flips a device between active, inactive, missing and
// stolen. Without an explicit location the caller's IP location is used.
func (h *DeviceHandler) ReportStatusHandler(c *gin.Context) {
	var report models.StatusReport
	if !bindJSON(c, &report) {
		return
	}
	report.DeviceID = c.Param("id")
	report.ActorID = middleware.CurrentUserID(c)
	report.Status = models.DeviceStatus(strings.ToLower(strings.TrimSpace(string(report.Status))))
	report.Location = strings.TrimSpace(report.Location)
	if report.Location == "" {
		report.Location = middleware.LocationFromContext(c)
	}

	device, err := h.Registry.ReportStatus(c.Request.Context(), report)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, device)
}

func (h *DeviceHandler) DeviceHistoryHandler(c *gin.Context) {
	device, ok := h.ownedDevice(c)
	if !ok {
		return
	}
	entries, err := h.Audit.HistoryFor(c.Request.Context(), device.ID)
	if err != nil {
		utils.RespondError(c, models.NewTransientError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"deviceId": device.ID, "history": entries})
}
