package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/necdetsanli/do-not-ghost-me-sub002/internal/auth"
	"github.com/necdetsanli/do-not-ghost-me-sub002/internal/companies"
	"github.com/necdetsanli/do-not-ghost-me-sub002/internal/ratelimit"
	"github.com/necdetsanli/do-not-ghost-me-sub002/internal/reports"
	"go.uber.org/zap"
)

const adminUserContextKey = "ghostme_admin_user"

var (
	errMissingReportService    = errors.New("report service dependency required")
	errMissingCompanyService   = errors.New("company service dependency required")
	errMissingTokenManager     = errors.New("token manager dependency required")
	errMissingAdminCredentials = errors.New("admin credentials dependency required")
	errInvalidAuthorization    = errors.New("authorization header missing or invalid")
)

// AdminTokenManager issues and validates admin session tokens.
type AdminTokenManager interface {
	IssueAdminToken(ctx context.Context, username string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

// Dependencies wires the HTTP surface to the application services.
type Dependencies struct {
	ReportService  *reports.Service
	CompanyService *companies.Service
	TokenManager   AdminTokenManager
	Credentials    auth.Credentials
	Logger         *zap.Logger
}

// NewHTTPHandler builds the gin router for public submission, public reads
// and the admin moderation surface.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.ReportService == nil {
		return nil, errMissingReportService
	}
	if deps.CompanyService == nil {
		return nil, errMissingCompanyService
	}
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Credentials.Username == "" || deps.Credentials.Password == "" {
		return nil, errMissingAdminCredentials
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		reports:     deps.ReportService,
		companies:   deps.CompanyService,
		tokens:      deps.TokenManager,
		credentials: deps.Credentials,
		logger:      logger,
	}

	router.POST("/reports", handler.handleSubmitReport)
	router.GET("/companies/:companyID/reports", handler.handleListCompanyReports)
	router.POST("/admin/login", handler.handleAdminLogin)

	admin := router.Group("/admin")
	admin.Use(handler.authorizeAdmin)
	admin.GET("/reports/pending", handler.handleListPendingReports)
	admin.POST("/reports/:reportID/approve", handler.moderationHandler(reports.ReportStatusApproved))
	admin.POST("/reports/:reportID/reject", handler.moderationHandler(reports.ReportStatusRejected))

	return router, nil
}

type httpHandler struct {
	reports     *reports.Service
	companies   *companies.Service
	tokens      AdminTokenManager
	credentials auth.Credentials
	logger      *zap.Logger
}

type submitRequestPayload struct {
	CompanyName      string `json:"company_name"`
	PositionCategory string `json:"position_category"`
	PositionDetail   string `json:"position_detail"`
	Details          string `json:"details"`
}

type reportPayload struct {
	ReportID          string `json:"report_id"`
	CompanyID         string `json:"company_id"`
	PositionCategory  string `json:"position_category"`
	PositionDetail    string `json:"position_detail"`
	Details           string `json:"details"`
	Status            string `json:"status"`
	CreatedAtSeconds  int64  `json:"created_at_s"`
	ReviewedAtSeconds *int64 `json:"reviewed_at_s,omitempty"`
}

func toReportPayload(report reports.Report) reportPayload {
	return reportPayload{
		ReportID:          report.ReportID,
		CompanyID:         report.CompanyID,
		PositionCategory:  string(report.PositionCategory),
		PositionDetail:    report.PositionDetail,
		Details:           report.Details,
		Status:            string(report.Status),
		CreatedAtSeconds:  report.CreatedAtSeconds,
		ReviewedAtSeconds: report.ReviewedAtSeconds,
	}
}

func (h *httpHandler) handleSubmitReport(c *gin.Context) {
	var request submitRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	report, err := h.reports.SubmitReport(c.Request.Context(), c.ClientIP(), reports.SubmitInput{
		CompanyName:      request.CompanyName,
		PositionCategory: request.PositionCategory,
		PositionDetail:   request.PositionDetail,
		Details:          request.Details,
	})
	if err != nil {
		h.writeSubmitError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toReportPayload(report))
}

// writeSubmitError keeps the rejection taxonomy client-safe: limit rejections
// become 429 with stable codes, infrastructure failures stay 500 and are
// never logged as abuse.
func (h *httpHandler) writeSubmitError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, companies.ErrInvalidCompanyName),
		errors.Is(err, reports.ErrInvalidPositionCategory),
		errors.Is(err, reports.ErrInvalidPositionDetail):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
	case errors.Is(err, ratelimit.ErrMissingIP):
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_client_ip"})
	case errors.Is(err, ratelimit.ErrDailyLimitExceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "daily_limit_exceeded"})
	case errors.Is(err, ratelimit.ErrCompanyLimitExceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "company_limit_exceeded"})
	case errors.Is(err, ratelimit.ErrDuplicatePosition):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "duplicate_position"})
	default:
		h.logger.Error("report submission failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "submission_failed"})
	}
}

func (h *httpHandler) handleListCompanyReports(c *gin.Context) {
	companyID := c.Param("companyID")

	company, err := h.companies.GetByID(c.Request.Context(), companyID)
	if errors.Is(err, companies.ErrCompanyNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "company_not_found"})
		return
	}
	if err != nil {
		h.logger.Error("company lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
		return
	}

	approved, err := h.reports.ListApproved(c.Request.Context(), company.CompanyID)
	if err != nil {
		h.logger.Error("failed to list approved reports", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
		return
	}

	payload := make([]reportPayload, 0, len(approved))
	for _, report := range approved {
		payload = append(payload, toReportPayload(report))
	}
	c.JSON(http.StatusOK, gin.H{"company_name": company.Name, "reports": payload})
}

type loginRequestPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handleAdminLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if !h.credentials.Match(request.Username, request.Password) {
		h.logger.Warn("admin login rejected", zap.String("username", request.Username))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	token, expiresIn, err := h.tokens.IssueAdminToken(c.Request.Context(), request.Username)
	if err != nil {
		h.logger.Error("failed to issue admin token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, loginResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

func (h *httpHandler) handleListPendingReports(c *gin.Context) {
	pending, err := h.reports.ListPending(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list pending reports", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
		return
	}

	payload := make([]reportPayload, 0, len(pending))
	for _, report := range pending {
		payload = append(payload, toReportPayload(report))
	}
	c.JSON(http.StatusOK, gin.H{"reports": payload})
}

func (h *httpHandler) moderationHandler(verdict reports.ReportStatus) gin.HandlerFunc {
	return func(c *gin.Context) {
		reportID := c.Param("reportID")

		moderated, err := h.reports.Moderate(c.Request.Context(), reportID, verdict)
		switch {
		case errors.Is(err, reports.ErrReportNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "report_not_found"})
			return
		case errors.Is(err, reports.ErrAlreadyModerated):
			c.JSON(http.StatusConflict, gin.H{"error": "already_moderated"})
			return
		case err != nil:
			h.logger.Error("moderation failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "moderation_failed"})
			return
		}

		c.JSON(http.StatusOK, toReportPayload(moderated))
	}
}

func (h *httpHandler) authorizeAdmin(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	username, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("admin token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(adminUserContextKey, username)
	c.Next()
}
