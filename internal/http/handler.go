package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nurpe/carbon-credits/internal/http/middleware"
	"github.com/nurpe/carbon-credits/internal/ledger"
	"github.com/nurpe/carbon-credits/internal/media"
	"github.com/nurpe/carbon-credits/internal/model"
	"github.com/nurpe/carbon-credits/internal/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	claims    *service.ClaimService
	requests  *service.RequestService
	directory *service.DirectoryService
	session   *ledger.Session
	maxUpload int64
	log       zerolog.Logger
}

func NewHandler(
	claims *service.ClaimService,
	requests *service.RequestService,
	directory *service.DirectoryService,
	session *ledger.Session,
	maxUpload int64,
	log zerolog.Logger,
) *Handler {
	if maxUpload <= 0 {
		maxUpload = media.DefaultMaxSize
	}
	return &Handler{
		claims:    claims,
		requests:  requests,
		directory: directory,
		session:   session,
		maxUpload: maxUpload,
		log:       log,
	}
}

func (h *Handler) Register(router *gin.Engine, authMiddleware gin.HandlerFunc) {
	protected := router.Group("/")
	protected.Use(authMiddleware)

	protected.GET("/organizations", h.listOrganizations)
	protected.GET("/media/:hash", h.getMedia)
	protected.GET("/claims/unapproved", h.listUnapprovedClaims)
	protected.GET("/claims/submissions/:id/receipt", h.claimReceipt)
	protected.GET("/requests", h.listRequests)
	protected.GET("/requests/export", h.exportRequests)

	writes := protected.Group("/")
	writes.Use(middleware.RequireTransact())
	writes.POST("/claims", h.submitClaim)
	writes.POST("/requests", h.createRequest)
	writes.POST("/requests/:id/approve", h.handleRequest(true))
	writes.POST("/requests/:id/decline", h.handleRequest(false))
}

type claimResponse struct {
	ClaimID         string `json:"claim_id"`
	SubmissionID    string `json:"submission_id,omitempty"`
	State           string `json:"state"`
	EvidenceHash    string `json:"evidence_hash"`
	PredictedTokens int64  `json:"predicted_tokens"`
	AwardedTokens   int64  `json:"awarded_tokens"`
	OracleDegraded  bool   `json:"oracle_degraded"`
	SubmitTxHash    string `json:"submit_tx_hash"`
	ApproveTxHash   string `json:"approve_tx_hash,omitempty"`
	Error           string `json:"error,omitempty"`
}

func (h *Handler) submitClaim(c *gin.Context) {
	input, err := parseClaimForm(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	evidence, err := h.readEvidence(c)
	if err != nil {
		h.handleError(c, err)
		return
	}

	result, err := h.claims.Submit(c.Request.Context(), h.actingSession(c), input, evidence)
	if err != nil {
		if errors.Is(err, service.ErrSubmittedUnapproved) && result != nil {
			resp := toClaimResponse(result)
			resp.Error = err.Error()
			c.JSON(http.StatusAccepted, resp)
			return
		}
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toClaimResponse(result))
}

func (h *Handler) readEvidence(c *gin.Context) (*media.File, error) {
	header, err := c.FormFile("photo")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Join(service.ErrValidation, err)
	}
	if header.Size > h.maxUpload {
		return nil, errors.Join(service.ErrValidation, media.ErrTooLarge)
	}
	f, err := header.Open()
	if err != nil {
		return nil, errors.Join(service.ErrValidation, err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, h.maxUpload+1))
	if err != nil {
		return nil, errors.Join(service.ErrValidation, err)
	}
	return &media.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (h *Handler) listUnapprovedClaims(c *gin.Context) {
	subs, err := h.claims.ListUnapproved(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	items := make([]gin.H, 0, len(subs))
	for _, sub := range subs {
		item := gin.H{
			"submission_id":   sub.ID.String(),
			"claim_id":        sub.ClaimID,
			"organization":    sub.Organization,
			"project_name":    sub.ProjectName,
			"demanded_tokens": sub.DemandedTokens,
			"awarded_tokens":  sub.AwardedTokens,
			"oracle_degraded": sub.OracleDegraded,
			"submit_tx_hash":  sub.SubmitTxHash,
			"created_at":      sub.CreatedAt,
		}
		if sub.FailureReason != nil {
			item["failure_reason"] = *sub.FailureReason
		}
		items = append(items, item)
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) claimReceipt(c *gin.Context) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid submission id"})
		return
	}
	result, err := h.claims.Receipt(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=\""+result.FileName+"\"")
	c.Data(http.StatusOK, "application/pdf", result.Content)
}

func (h *Handler) listOrganizations(c *gin.Context) {
	orgs, err := h.directory.List(c.Request.Context(), h.session)
	if err != nil {
		h.handleError(c, err)
		return
	}
	items := make([]gin.H, 0, len(orgs))
	for _, org := range orgs {
		item := gin.H{
			"address":       org.Address,
			"name":          org.Name,
			"photo_hash":    org.PhotoHash,
			"balance":       org.Balance.String(),
			"is_registered": org.IsRegistered,
			"has_photo":     org.HasPhoto(),
		}
		if org.HasPhoto() {
			item["photo_url"] = "/media/" + org.PhotoHash
			item["photo_content_type"] = org.PhotoContentType
		}
		items = append(items, item)
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) getMedia(c *gin.Context) {
	result, err := h.directory.Media(c.Request.Context(), c.Param("hash"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.Data(http.StatusOK, result.ContentType, result.Content)
}

type createRequestBody struct {
	Seller string      `json:"seller" binding:"required"`
	Amount json.Number `json:"amount" binding:"required"`
}

func (h *Handler) createRequest(c *gin.Context) {
	var body createRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := h.requests.Create(c.Request.Context(), h.actingSession(c), body.Seller, body.Amount.String())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"request_id": result.RequestID, "tx_hash": result.TxHash})
}

func (h *Handler) listRequests(c *gin.Context) {
	requests, err := h.requests.List(c.Request.Context(), h.session, c.Query("address"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	items := make([]gin.H, 0, len(requests))
	for _, req := range requests {
		items = append(items, toRequestJSON(req))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) exportRequests(c *gin.Context) {
	result, err := h.requests.Export(c.Request.Context(), h.session, c.Query("address"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.Header("Content-Type", xlsxContentType)
	c.Header("Content-Disposition", "attachment; filename=\""+result.FileName+"\"")
	c.Data(http.StatusOK, xlsxContentType, result.Content)
}

func (h *Handler) handleRequest(approve bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.requests.Handle(c.Request.Context(), h.actingSession(c), c.Param("id"), approve); err != nil {
			h.handleError(c, err)
			return
		}
		status := model.RequestStatusDeclined
		if approve {
			status = model.RequestStatusApproved
		}
		c.JSON(http.StatusOK, gin.H{"request_id": c.Param("id"), "status": status})
	}
}

// actingSession attributes the shared ledger account to the authenticated
// user for this request.
func (h *Handler) actingSession(c *gin.Context) *ledger.Session {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		return h.session
	}
	return h.session.WithActor(principal.UserID)
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotAuthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidStateTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInsufficientBalance):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrUpload), errors.Is(err, service.ErrLedgerTransaction):
		h.log.Warn().Err(err).Str("path", c.FullPath()).Msg("upstream failure")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func parseClaimForm(c *gin.Context) (model.ClaimInput, error) {
	var input model.ClaimInput
	ints := []struct {
		field string
		dst   *int64
	}{
		{"coordinates_x", &input.CoordinateX},
		{"coordinates_y", &input.CoordinateY},
		{"acres", &input.Acres},
		{"demanded_tokens", &input.DemandedTokens},
	}
	for _, f := range ints {
		raw := strings.TrimSpace(c.PostForm(f.field))
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return model.ClaimInput{}, errors.New("invalid " + f.field)
		}
		*f.dst = v
	}
	input.ProjectName = strings.TrimSpace(c.PostForm("project_name"))
	input.ProjectDetails = c.PostForm("project_details")
	return input, nil
}

func toClaimResponse(r *model.ClaimResult) claimResponse {
	return claimResponse{
		ClaimID:         r.ClaimID,
		SubmissionID:    r.SubmissionID,
		State:           string(r.State),
		EvidenceHash:    r.EvidenceHash,
		PredictedTokens: r.PredictedTokens,
		AwardedTokens:   r.AwardedTokens,
		OracleDegraded:  r.OracleDegraded,
		SubmitTxHash:    r.SubmitTxHash,
		ApproveTxHash:   r.ApproveTxHash,
	}
}

func toRequestJSON(req model.BorrowRequest) gin.H {
	return gin.H{
		"id":               req.ID,
		"buyer":            req.Buyer,
		"potential_seller": req.PotentialSeller,
		"amount":           req.Amount.String(),
		"price":            req.Price.String(),
		"status":           req.Status,
	}
}
