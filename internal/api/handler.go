package api

import (
	"errors"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"ordertrack-backend/config"
	"ordertrack-backend/internal/apperr"
	"ordertrack-backend/internal/notification"
	"ordertrack-backend/internal/order"
	"ordertrack-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	cfg        *config.Config
	store      store.Store
	orders     *order.Service
	workerPool *notification.WorkerPool
	webpush    *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(cfg *config.Config, s store.Store, orders *order.Service, wp *notification.WorkerPool, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		cfg:        cfg,
		store:      s,
		orders:     orders,
		workerPool: wp,
		webpush:    webpushOptions,
	}
}

// respondError maps the service error taxonomy onto HTTP status codes.
func respondError(c *gin.Context, err error) {
	var (
		ve *apperr.ValidationError
		nf *apperr.NotFoundError
		ce *apperr.ConflictError
	)
	switch {
	case errors.As(err, &ve):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": ve.Message})
	case errors.As(err, &nf):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": nf.Error()})
	case errors.As(err, &ce):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "serial allocation conflict, please retry"})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
