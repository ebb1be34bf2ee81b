package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/princinho/agrorfq/dto"
	"github.com/princinho/agrorfq/logging"
	"github.com/princinho/agrorfq/models"
	"github.com/princinho/agrorfq/services"
	"github.com/princinho/agrorfq/utils"
)

const maxOfferImages = 4

var (
	errTooManyFiles    = errors.New("too many files")
	errUploadsDisabled = errors.New("uploads disabled")
)

// Attachments validates and stores files uploaded with an offer. A nil
// Uploader disables uploads.
type Attachments struct {
	Uploader utils.Uploader
	Images   *utils.FileValidator
	Document *utils.FileValidator
}

// ====== SubmitOffer ======================================================================
// POST /rfq/:id/offers
// application/json: SubmitOfferDTO
// multipart/form-data:
//   - data: JSON string (SubmitOfferDTO)
//   - images: up to 4 files (jpg/jpeg/png/webp)
//   - quotationDocument: optional pdf
func SubmitOffer(svc *services.OfferService, att Attachments) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := mustCaller(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		requestID := c.Param("id")

		var body dto.SubmitOfferDTO
		multipartBody := strings.HasPrefix(c.ContentType(), "multipart/")
		if multipartBody {
			dataStr := c.PostForm("data")
			if dataStr == "" {
				badRequest(c, "missing data field", nil)
				return
			}
			if err := json.Unmarshal([]byte(dataStr), &body); err != nil {
				badRequest(c, "invalid data json", err)
				return
			}
			if err := binding.Validator.ValidateStruct(&body); err != nil {
				badRequest(c, "invalid payload", err)
				return
			}
		} else if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "invalid payload", err)
			return
		}

		in := body.Input()
		var uploaded []models.Attachment
		if multipartBody {
			images, doc, err := att.store(c, requestID)
			if err != nil {
				return
			}
			in.Images = images
			in.QuotationDocument = doc
			uploaded = append(uploaded, images...)
			if doc != nil {
				uploaded = append(uploaded, *doc)
			}
		}

		offer, err := svc.Submit(ctx, caller, requestID, in)
		if err != nil {
			att.cleanup(ctx, uploaded)
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"offer": offer})
	}
}

// store validates and uploads the multipart files. On failure it has already
// written the response.
func (a Attachments) store(c *gin.Context, requestID string) ([]models.Attachment, *models.Attachment, error) {
	ctx := c.Request.Context()
	form, err := c.MultipartForm()
	if err != nil {
		badRequest(c, "invalid multipart form", err)
		return nil, nil, err
	}
	images := form.File["images"]
	docs := form.File["quotationDocument"]
	if len(images) == 0 && len(docs) == 0 {
		return nil, nil, nil
	}
	if len(images) > maxOfferImages {
		badRequest(c, "at most 4 images may be attached", nil)
		return nil, nil, errTooManyFiles
	}
	if len(docs) > 1 {
		badRequest(c, "only one quotation document may be attached", nil)
		return nil, nil, errTooManyFiles
	}
	if a.Uploader == nil {
		badRequest(c, "file uploads are not enabled", nil)
		return nil, nil, errUploadsDisabled
	}

	type pending struct {
		fh   *multipart.FileHeader
		mime string
	}
	var imgs []pending
	for _, fh := range images {
		mime, err := a.Images.ValidateFile(fh)
		if err != nil {
			badRequest(c, fh.Filename+": "+err.Error(), nil)
			return nil, nil, err
		}
		imgs = append(imgs, pending{fh, mime})
	}
	var doc *pending
	if len(docs) == 1 {
		mime, err := a.Document.ValidateFile(docs[0])
		if err != nil {
			badRequest(c, docs[0].Filename+": "+err.Error(), nil)
			return nil, nil, err
		}
		doc = &pending{docs[0], mime}
	}

	var stored []models.Attachment
	for _, p := range imgs {
		att, err := utils.UploadOfferAttachment(ctx, a.Uploader, requestID, "images", p.fh, p.mime)
		if err != nil {
			a.cleanup(ctx, stored)
			logging.L(ctx).Error("image upload failed", "request_id", requestID, "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to upload image", "code": "upload_failed"})
			return nil, nil, err
		}
		stored = append(stored, *att)
	}
	var quotation *models.Attachment
	if doc != nil {
		quotation, err = utils.UploadOfferAttachment(ctx, a.Uploader, requestID, "quotations", doc.fh, doc.mime)
		if err != nil {
			a.cleanup(ctx, stored)
			logging.L(ctx).Error("quotation upload failed", "request_id", requestID, "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to upload quotation document", "code": "upload_failed"})
			return nil, nil, err
		}
	}
	return stored, quotation, nil
}

func (a Attachments) cleanup(ctx context.Context, uploaded []models.Attachment) {
	if a.Uploader == nil || len(uploaded) == 0 {
		return
	}
	if err := utils.DeleteAttachments(context.WithoutCancel(ctx), a.Uploader, uploaded); err != nil {
		logging.L(ctx).Warn("failed to delete orphaned attachments", "error", err)
	}
}

// ====== ListRequestOffers ================================================================
// GET /rfq/:id/offers
func ListRequestOffers(svc *services.OfferService, paging Paging) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := mustCaller(c)
		if !ok {
			return
		}
		page := paging.parse(c)
		items, total, err := svc.ListForRequest(c.Request.Context(), caller, c.Param("id"), page.Skip(), int64(page.Limit))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, listResponse(items, page, total))
	}
}

// ====== MyOffers =========================================================================
// GET /rfq/offers/mine
func MyOffers(svc *services.OfferService, paging Paging) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := mustCaller(c)
		if !ok {
			return
		}
		page := paging.parse(c)
		items, total, err := svc.ListMine(c.Request.Context(), caller, page.Skip(), int64(page.Limit))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, listResponse(items, page, total))
	}
}

// ====== GetOffer =========================================================================
// GET /rfq/offers/:id
func GetOffer(svc *services.OfferService) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := mustCaller(c)
		if !ok {
			return
		}
		offer, err := svc.Get(c.Request.Context(), caller, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"offer": offer})
	}
}

// ====== MyOrders =========================================================================
// GET /rfq/orders/mine
func MyOrders(svc *services.OfferService, paging Paging) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := mustCaller(c)
		if !ok {
			return
		}
		page := paging.parse(c)
		items, total, err := svc.ListOrders(c.Request.Context(), caller, page.Skip(), int64(page.Limit))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, listResponse(items, page, total))
	}
}

// ====== AcceptOffer ======================================================================
// POST /rfq/offers/:id/accept
func AcceptOffer(svc *services.OfferService) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := mustCaller(c)
		if !ok {
			return
		}
		var body dto.AcceptOfferDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "invalid payload", err)
			return
		}
		offer, err := svc.AcceptByBuyer(c.Request.Context(), caller, c.Param("id"), body.Terms())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"offer": offer, "message": "Terms sent to the seller for confirmation."})
	}
}

// ====== RejectOffer ======================================================================
// POST /rfq/offers/:id/reject
func RejectOffer(svc *services.OfferService) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := mustCaller(c)
		if !ok {
			return
		}
		offer, err := svc.Reject(c.Request.Context(), caller, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"offer": offer})
	}
}

// ====== ConfirmTerms =====================================================================
// POST /rfq/offers/:id/confirm-terms
func ConfirmTerms(svc *services.OfferService) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := mustCaller(c)
		if !ok {
			return
		}
		res, err := svc.ConfirmTerms(c.Request.Context(), caller, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"offer": res.Offer, "order": res.Order})
	}
}

// ====== RejectTerms ======================================================================
// POST /rfq/offers/:id/reject-terms
func RejectTerms(svc *services.OfferService) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := mustCaller(c)
		if !ok {
			return
		}
		offer, err := svc.RejectTerms(c.Request.Context(), caller, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"offer": offer})
	}
}

// ====== MarkDelivered ====================================================================
// POST /rfq/offers/:id/delivered
func MarkDelivered(svc *services.OfferService) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := mustCaller(c)
		if !ok {
			return
		}
		res, err := svc.MarkDelivered(c.Request.Context(), caller, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"offer": res.Offer, "order": res.Order})
	}
}

// ====== ConfirmDelivery ==================================================================
// POST /rfq/offers/:id/confirm-delivery
func ConfirmDelivery(svc *services.FulfillmentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := mustCaller(c)
		if !ok {
			return
		}
		var body dto.ConfirmDeliveryDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "invalid payload", err)
			return
		}
		res, err := svc.ConfirmDelivery(c.Request.Context(), caller, c.Param("id"), body.Code)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"offer":        res.Offer,
			"order":        res.Order,
			"payoutStatus": res.PayoutStatus,
			"message":      res.Message,
		})
	}
}

// ====== TakeRequest ======================================================================
// POST /rfq/requests/:id/take
func TakeRequest(svc *services.InstantTakeService) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := mustCaller(c)
		if !ok {
			return
		}
		res, err := svc.Take(c.Request.Context(), caller, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"request": res.Request,
			"offer":   res.Offer,
			"order":   res.Order,
		})
	}
}
