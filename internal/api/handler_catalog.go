package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"ordertrack-backend/internal/model"
	"ordertrack-backend/internal/mw"
)

// GetCountries handles the GET /api/countries request.
func GetCountries(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var countries []model.Country
		if err := db.Order("name ASC").Find(&countries).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve countries"})
			return
		}
		c.JSON(http.StatusOK, countries)
	}
}

type createCountryRequest struct {
	Name string `json:"name" binding:"required"`
}

// CreateCountry handles POST /api/countries (admin only).
func (h *Handler) CreateCountry(c *gin.Context) {
	var req createCountryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	country := model.Country{Name: req.Name, CreatedAt: time.Now().UTC()}
	if err := h.store.DB().Create(&country).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create country"})
		return
	}
	c.JSON(http.StatusCreated, country)
}

// GetMachines handles the GET /api/machines request. Panels are preloaded so
// clients can show the full fan-out of an order up front.
func GetMachines(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var machines []model.Machine
		if err := db.Preload("Panels").Order("id ASC").Find(&machines).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve machines"})
			return
		}
		c.JSON(http.StatusOK, machines)
	}
}

// GetPanels handles the GET /api/machines/{machine_id}/panels request.
func GetPanels(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		machineID, err := strconv.ParseInt(c.Param("machine_id"), 10, 64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid machine ID"})
			return
		}

		var panels []model.Panel
		if err := db.Where("machine_id = ?", machineID).Order("id ASC").Find(&panels).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve panels"})
			return
		}
		c.JSON(http.StatusOK, panels)
	}
}

type createMachineRequest struct {
	Name        string `json:"name" binding:"required"`
	ProductCode string `json:"productCode" binding:"required"`
}

// CreateMachine handles POST /api/machines (admin only). The product code
// must be unique across machines and panels together.
func (h *Handler) CreateMachine(c *gin.Context) {
	var req createMachineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	taken, err := h.store.ProductCodeTaken(c.Request.Context(), req.ProductCode)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if taken {
		c.JSON(http.StatusBadRequest, gin.H{"error": "product code is already in use"})
		return
	}

	machine := model.Machine{
		Name:        req.Name,
		ProductCode: req.ProductCode,
		CreatedBy:   mw.UserID(c),
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.store.DB().Create(&machine).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create machine"})
		return
	}
	c.JSON(http.StatusCreated, machine)
}

type createPanelRequest struct {
	Name      string `json:"name" binding:"required"`
	PanelCode string `json:"panelCode" binding:"required"`
}

// CreatePanel handles POST /api/machines/{machine_id}/panels (admin only).
func (h *Handler) CreatePanel(c *gin.Context) {
	machineID, err := strconv.ParseInt(c.Param("machine_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid machine ID"})
		return
	}

	var req createPanelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	machine, err := h.store.GetMachine(c.Request.Context(), machineID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if machine == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "machine not found"})
		return
	}

	taken, err := h.store.ProductCodeTaken(c.Request.Context(), req.PanelCode)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if taken {
		c.JSON(http.StatusBadRequest, gin.H{"error": "panel code is already in use"})
		return
	}

	panel := model.Panel{
		Name:      req.Name,
		PanelCode: req.PanelCode,
		MachineID: machineID,
		CreatedBy: mw.UserID(c),
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.DB().Create(&panel).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create panel"})
		return
	}
	c.JSON(http.StatusCreated, panel)
}
