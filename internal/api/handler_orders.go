package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"ordertrack-backend/internal/model"
	"ordertrack-backend/internal/mw"
	"ordertrack-backend/internal/order"
)

type machineLineRequest struct {
	MachineID int64 `json:"machineId" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required"`
}

type createOrderRequest struct {
	CustomerName     string               `json:"customerName" binding:"required"`
	ShippingLocation string               `json:"shippingLocation"`
	CountryID        int64                `json:"countryId" binding:"required"`
	QuoteNumber      string               `json:"quoteNumber"`
	InvoiceNumber    string               `json:"invoiceNumber"`
	DueDate          *time.Time           `json:"dueDate"`
	MachineLines     []machineLineRequest `json:"machineLines" binding:"required"`
}

// CreateOrder handles POST /api/orders: it creates the order and mints one
// serial per machine unit plus one per unit for every attached panel, all in
// one unit of work.
func (h *Handler) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	lines := make([]model.MachineLine, len(req.MachineLines))
	for i, l := range req.MachineLines {
		lines[i] = model.MachineLine{MachineID: l.MachineID, Quantity: l.Quantity}
	}

	created, err := h.orders.Create(c.Request.Context(), order.CreateInput{
		CustomerName:     req.CustomerName,
		ShippingLocation: req.ShippingLocation,
		CountryID:        req.CountryID,
		QuoteNumber:      req.QuoteNumber,
		InvoiceNumber:    req.InvoiceNumber,
		DueDate:          req.DueDate,
		MachineLines:     lines,
	}, mw.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, created)
}

// GetOrders handles GET /api/orders with optional progress/payment filters.
func (h *Handler) GetOrders(c *gin.Context) {
	query := h.store.DB().Order("created_at DESC")
	if p := c.Query("progress"); p != "" {
		query = query.Where("progress_status = ?", p)
	}
	if p := c.Query("payment"); p != "" {
		query = query.Where("payment_status = ?", p)
	}

	var orders []model.Order
	if err := query.Find(&orders).Error; err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve orders"})
		return
	}
	c.JSON(http.StatusOK, orders)
}

// GetOrder handles GET /api/orders/{order_id}, returning the order with its
// minted serials.
func (h *Handler) GetOrder(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("order_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	o, err := h.orders.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// GetOrderSerials handles GET /api/orders/{order_id}/serials.
func (h *Handler) GetOrderSerials(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("order_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	o, err := h.orders.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o.Serials)
}

type updateOrderRequest struct {
	CustomerName     *string    `json:"customerName"`
	ShippingLocation *string    `json:"shippingLocation"`
	QuoteNumber      *string    `json:"quoteNumber"`
	InvoiceNumber    *string    `json:"invoiceNumber"`
	DueDate          *time.Time `json:"dueDate"`
}

// UpdateOrder handles PUT /api/orders/{order_id}. Header fields only: the
// machine lines are immutable after creation because the serial batch was
// minted from them.
func (h *Handler) UpdateOrder(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("order_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	var req updateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	updates := map[string]any{}
	if req.CustomerName != nil {
		updates["customer_name"] = *req.CustomerName
	}
	if req.ShippingLocation != nil {
		updates["shipping_location"] = *req.ShippingLocation
	}
	if req.QuoteNumber != nil {
		updates["quote_number"] = *req.QuoteNumber
	}
	if req.InvoiceNumber != nil {
		updates["invoice_number"] = *req.InvoiceNumber
	}
	if req.DueDate != nil {
		updates["due_date"] = *req.DueDate
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
		return
	}

	res := h.store.DB().Model(&model.Order{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update order"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}

	o, err := h.orders.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

type updateStatusRequest struct {
	ProgressStatus *string `json:"progressStatus"`
	PaymentStatus  *string `json:"paymentStatus"`
}

// UpdateOrderStatus handles PATCH /api/orders/{order_id}/status and notifies
// the order's push subscribers.
func (h *Handler) UpdateOrderStatus(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("order_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if req.ProgressStatus == nil && req.PaymentStatus == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no status to update"})
		return
	}

	o, err := h.orders.UpdateStatus(c.Request.Context(), id, req.ProgressStatus, req.PaymentStatus)
	if err != nil {
		respondError(c, err)
		return
	}

	if h.workerPool != nil {
		h.workerPool.Dispatch(o.ID)
	}
	c.JSON(http.StatusOK, o)
}

// DeleteOrder handles DELETE /api/orders/{order_id} (admin only). Serials are
// removed by cascade; their numbers are never reissued.
func (h *Handler) DeleteOrder(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("order_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	if err := h.orders.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
