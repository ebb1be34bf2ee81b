package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/princinho/agrorfq/dto"
	"github.com/princinho/agrorfq/models"
	"github.com/princinho/agrorfq/services"
)

// ====== InitializePayment ================================================================
// POST /rfq/initialize-payment
func InitializePayment(svc *services.RequestService) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := mustCaller(c)
		if !ok {
			return
		}
		var body dto.InitializePaymentDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "invalid payload", err)
			return
		}

		started, err := svc.InitializePayment(c.Request.Context(), caller, services.InitializePaymentInput{
			Type:            models.RequestType(body.Type),
			EstimatedBudget: body.EstimatedBudget,
			Email:           body.Email,
		})
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"reference":        started.Reference,
			"authorizationUrl": started.AuthorizationURL,
			"accessCode":       started.AccessCode,
			"fee": gin.H{
				"platformFee":     started.Fee.PlatformFee.InexactFloat64(),
				"agentFee":        started.Fee.AgentFee.InexactFloat64(),
				"total":           started.Fee.Total.InexactFloat64(),
				"totalMinorUnits": started.Fee.TotalMinorUnits(),
			},
		})
	}
}

// ====== CreateRequest ====================================================================
// POST /rfq/
// Spends a payment already confirmed through verify-payment that has no request yet.
func CreateRequest(svc *services.RequestService) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := mustCaller(c)
		if !ok {
			return
		}
		var body dto.CreateRequestDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "invalid payload", err)
			return
		}

		req, err := svc.Create(c.Request.Context(), caller, body.Spec(), body.PaymentReference)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"request": svc.View(*req)})
	}
}

// ====== VerifyPayment ====================================================================
// POST /rfq/verify-payment
// Safe to retry: a reference that already produced a request returns it with 200.
func VerifyPayment(svc *services.RequestService) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := mustCaller(c)
		if !ok {
			return
		}
		var body dto.VerifyPaymentDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "invalid payload", err)
			return
		}

		res, err := svc.VerifyAndCreate(c.Request.Context(), caller, body.Request.Spec(), body.Reference)
		if err != nil {
			respondError(c, err)
			return
		}
		status := http.StatusOK
		if res.Created {
			status = http.StatusCreated
		}
		c.JSON(status, gin.H{"request": svc.View(*res.Request), "created": res.Created})
	}
}

// ====== ListRequests =====================================================================
// GET /rfq/?type=instant&state=Kano&q=maize&page=1&limit=20
func ListRequests(svc *services.RequestService, paging Paging) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqType := models.RequestType(strings.ToLower(strings.TrimSpace(c.Query("type"))))
		switch reqType {
		case "", models.RequestTypeInstant, models.RequestTypeStandard:
		default:
			badRequest(c, "type must be instant or standard", nil)
			return
		}

		page := paging.parse(c)
		items, total, err := svc.ListOpen(c.Request.Context(), services.RequestQuery{
			Type:  reqType,
			State: c.Query("state"),
			Query: c.Query("q"),
			Skip:  page.Skip(),
			Limit: int64(page.Limit),
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, listResponse(svc.Views(items), page, total))
	}
}

// ====== MyRequests =======================================================================
// GET /rfq/mine?status=active
func MyRequests(svc *services.RequestService, paging Paging) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := mustCaller(c)
		if !ok {
			return
		}
		page := paging.parse(c)
		status := models.RequestStatus(strings.TrimSpace(c.Query("status")))
		items, total, err := svc.ListMine(c.Request.Context(), caller, status, page.Skip(), int64(page.Limit))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, listResponse(svc.Views(items), page, total))
	}
}

// ====== GetRequest =======================================================================
// GET /rfq/:id
func GetRequest(svc *services.RequestService) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := mustCaller(c)
		if !ok {
			return
		}
		req, err := svc.Get(c.Request.Context(), caller, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"request": svc.View(*req)})
	}
}

// ====== UpdateRequest ====================================================================
// PUT /rfq/:id
func UpdateRequest(svc *services.RequestService) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := mustCaller(c)
		if !ok {
			return
		}
		var body dto.UpdateRequestDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "invalid payload", err)
			return
		}

		res, err := svc.Edit(c.Request.Context(), caller, c.Param("id"), body.Patch())
		if err != nil {
			respondError(c, err)
			return
		}
		msg := "request updated"
		if !res.Changed {
			msg = "no changes to apply"
		}
		c.JSON(http.StatusOK, gin.H{"request": svc.View(*res.Request), "changed": res.Changed, "message": msg})
	}
}

// ====== UpdateRequestStatus ==============================================================
// PUT /rfq/:id/status
func UpdateRequestStatus(svc *services.RequestService) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := mustCaller(c)
		if !ok {
			return
		}
		var body dto.UpdateRequestStatusDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "invalid payload", err)
			return
		}

		status := models.RequestStatus(strings.ToLower(strings.TrimSpace(body.Status)))
		res, err := svc.UpdateStatus(c.Request.Context(), caller, c.Param("id"), status)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"request": svc.View(*res.Request), "changed": res.Changed, "message": res.Message})
	}
}
