package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/princinho/agrorfq/middleware"
	"github.com/princinho/agrorfq/services"
)

// Deps are the engine services the HTTP surface exposes.
type Deps struct {
	Requests    *services.RequestService
	Offers      *services.OfferService
	Instant     *services.InstantTakeService
	Fulfillment *services.FulfillmentService
	Attachments Attachments
	Paging      Paging
	JWTSecret   string
}

// Register mounts the RFQ routes on r. Every /rfq route requires a token.
func Register(r gin.IRouter, d Deps) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	rfq := r.Group("/rfq")
	rfq.Use(middleware.AuthMiddleware(d.JWTSecret))
	{
		rfq.POST("/initialize-payment", InitializePayment(d.Requests))
		rfq.POST("/verify-payment", VerifyPayment(d.Requests))
		rfq.POST("/", CreateRequest(d.Requests))
		rfq.GET("/", ListRequests(d.Requests, d.Paging))
		rfq.GET("/mine", MyRequests(d.Requests, d.Paging))
		rfq.GET("/:id", GetRequest(d.Requests))
		rfq.PUT("/:id", UpdateRequest(d.Requests))
		rfq.PUT("/:id/status", UpdateRequestStatus(d.Requests))

		rfq.POST("/:id/offers", SubmitOffer(d.Offers, d.Attachments))
		rfq.GET("/:id/offers", ListRequestOffers(d.Offers, d.Paging))
		rfq.GET("/offers/mine", MyOffers(d.Offers, d.Paging))
		rfq.GET("/offers/:id", GetOffer(d.Offers))
		rfq.POST("/offers/:id/accept", AcceptOffer(d.Offers))
		rfq.POST("/offers/:id/reject", RejectOffer(d.Offers))
		rfq.POST("/offers/:id/confirm-terms", ConfirmTerms(d.Offers))
		rfq.POST("/offers/:id/reject-terms", RejectTerms(d.Offers))
		rfq.POST("/offers/:id/delivered", MarkDelivered(d.Offers))
		rfq.POST("/offers/:id/confirm-delivery", ConfirmDelivery(d.Fulfillment))

		rfq.GET("/orders/mine", MyOrders(d.Offers, d.Paging))
		rfq.POST("/requests/:id/take", TakeRequest(d.Instant))
	}
}
