package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/princinho/agrorfq/logging"
	"github.com/princinho/agrorfq/middleware"
	"github.com/princinho/agrorfq/models"
	"github.com/princinho/agrorfq/services"
	"github.com/princinho/agrorfq/utils"
)

// Paging bounds the page size list endpoints accept.
type Paging struct {
	MaxLimit     int
	DefaultLimit int
}

func (p Paging) parse(c *gin.Context) utils.Page {
	return utils.ParsePage(c.Query("page"), c.Query("limit"), p.MaxLimit, p.DefaultLimit)
}

func listResponse[T any](items []T, page utils.Page, total int64) gin.H {
	if items == nil {
		items = []T{}
	}
	return gin.H{
		"items": items,
		"page":  page.Page,
		"limit": page.Limit,
		"total": total,
	}
}

var kindStatus = map[services.ErrorKind]int{
	services.KindValidation:          http.StatusBadRequest,
	services.KindForbidden:           http.StatusForbidden,
	services.KindNotFound:            http.StatusNotFound,
	services.KindInvalidState:        http.StatusConflict,
	services.KindPaymentRequired:     http.StatusPaymentRequired,
	services.KindPaymentVerification: http.StatusBadGateway,
	services.KindPaymentNotConfirmed: http.StatusPaymentRequired,
	services.KindInsufficientPayment: http.StatusPaymentRequired,
	services.KindInvalidCode:         http.StatusBadRequest,
}

// StatusFor maps an engine error to its HTTP status.
func StatusFor(err error) int {
	if status, ok := kindStatus[services.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	status := StatusFor(err)
	kind := services.KindOf(err)
	if status == http.StatusInternalServerError {
		logging.L(c.Request.Context()).Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(status, gin.H{"error": "internal server error", "code": "internal_error"})
		return
	}
	msg := err.Error()
	var se *services.Error
	if errors.As(err, &se) {
		msg = se.Message
	}
	c.JSON(status, gin.H{"error": msg, "code": kind})
}

func badRequest(c *gin.Context, msg string, err error) {
	body := gin.H{"error": msg, "code": services.KindValidation}
	if err != nil {
		body["details"] = err.Error()
	}
	c.JSON(http.StatusBadRequest, body)
}

// mustCaller returns the authenticated caller, writing 401 when there is none.
func mustCaller(c *gin.Context) (models.Caller, bool) {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
	}
	return caller, ok
}
