package auth

import (
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type Handler struct {
	service *Service
	log     *zap.Logger
}

func NewHandler(service *Service, log *zap.Logger) *Handler {
	registerJSONFieldNames()
	return &Handler{
		service: service,
		log:     log,
	}
}

type registerBody struct {
	Email            string `json:"email" binding:"required,email,max=255"`
	Password         string `json:"password" binding:"required"`
	FirstName        string `json:"firstName" binding:"max=100"`
	LastName         string `json:"lastName" binding:"max=100"`
	Phone            string `json:"phone" binding:"omitempty,max=20"`
	MarketingConsent bool   `json:"marketingConsent"`
}

// loginBody deliberately skips email format checks so every bad email ends up
// as INVALID_CREDENTIALS.
type loginBody struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshBody struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type logoutBody struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenBody struct {
	Token string `json:"token" binding:"required"`
}

type emailBody struct {
	Email string `json:"email" binding:"required,email"`
}

type resetPasswordBody struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type changePasswordBody struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,nefield=CurrentPassword"`
}

type tokensResponse struct {
	Success bool      `json:"success"`
	Tokens  TokenPair `json:"tokens"`
	User    *User     `json:"user"`
}

type loginResponse struct {
	tokensResponse
	RequiresEmailVerification bool `json:"requiresEmailVerification"`
}

type errorResponse struct {
	Success bool              `json:"success"`
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (h *Handler) Register(c *gin.Context) {
	var body registerBody
	if !h.bind(c, &body) {
		return
	}

	user, err := h.service.Register(c.Request.Context(), RegisterRequest{
		Email:            body.Email,
		Password:         body.Password,
		FirstName:        body.FirstName,
		LastName:         body.LastName,
		Phone:            body.Phone,
		MarketingConsent: body.MarketingConsent,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"user":    user,
		"message": "Registration successful. Please check your email to verify your account.",
	})
}

func (h *Handler) Login(c *gin.Context) {
	var body loginBody
	if !h.bind(c, &body) {
		return
	}

	result, err := h.service.Login(c.Request.Context(), LoginRequest{
		Email:    body.Email,
		Password: body.Password,
		Meta:     clientMeta(c),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	switch r := result.(type) {
	case LoginSuccess:
		c.JSON(http.StatusOK, loginResponse{
			tokensResponse: tokensResponse{
				Success: true,
				Tokens:  r.Tokens,
				User:    r.User,
			},
			RequiresEmailVerification: r.RequiresEmailVerification,
		})
	default:
		h.writeError(c, r.Err())
	}
}

func (h *Handler) Refresh(c *gin.Context) {
	var body refreshBody
	if !h.bind(c, &body) {
		return
	}

	tokens, user, err := h.service.Rotate(c.Request.Context(), body.RefreshToken, clientMeta(c))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, tokensResponse{
		Success: true,
		Tokens:  tokens,
		User:    user,
	})
}

func (h *Handler) Me(c *gin.Context) {
	id, err := IdentityFromContext(c.Request.Context())
	if err != nil {
		h.writeError(c, ErrInvalidToken)
		return
	}

	user, err := h.service.Me(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "user": user})
}

func (h *Handler) Logout(c *gin.Context) {
	var body logoutBody
	// An empty body is allowed; the bearer token alone identifies the session.
	_ = c.ShouldBindJSON(&body)

	id, _ := IdentityFromContext(c.Request.Context())
	if err := h.service.Logout(c.Request.Context(), body.RefreshToken, id); err != nil {
		h.log.Warn("logout failed", zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Logged out successfully"})
}

func (h *Handler) LogoutAll(c *gin.Context) {
	id, err := IdentityFromContext(c.Request.Context())
	if err != nil {
		h.writeError(c, ErrInvalidToken)
		return
	}

	n, err := h.service.LogoutAll(c.Request.Context(), id.UserID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "sessionsEnded": n})
}

func (h *Handler) Sessions(c *gin.Context) {
	id, err := IdentityFromContext(c.Request.Context())
	if err != nil {
		h.writeError(c, ErrInvalidToken)
		return
	}

	sessions, err := h.service.ActiveSessions(c.Request.Context(), id.UserID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if sessions == nil {
		sessions = []Session{}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "sessions": sessions})
}

func (h *Handler) VerifyEmail(c *gin.Context) {
	var body tokenBody
	if !h.bind(c, &body) {
		return
	}

	if err := h.service.VerifyEmail(c.Request.Context(), body.Token); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Email verified successfully"})
}

func (h *Handler) ForgotPassword(c *gin.Context) {
	var body emailBody
	if !h.bind(c, &body) {
		return
	}

	if err := h.service.RequestPasswordReset(c.Request.Context(), body.Email); err != nil {
		h.log.Error("password reset request failed", zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "If an account with that email exists, a password reset link has been sent.",
	})
}

func (h *Handler) ResetPassword(c *gin.Context) {
	var body resetPasswordBody
	if !h.bind(c, &body) {
		return
	}

	if err := h.service.ResetPassword(c.Request.Context(), body.Token, body.Password); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Password reset successfully"})
}

func (h *Handler) ChangePassword(c *gin.Context) {
	id, err := IdentityFromContext(c.Request.Context())
	if err != nil {
		h.writeError(c, ErrInvalidToken)
		return
	}

	var body changePasswordBody
	if !h.bind(c, &body) {
		return
	}

	if err := h.service.ChangePassword(c.Request.Context(), id.UserID, body.CurrentPassword, body.NewPassword); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Password changed successfully"})
}

func (h *Handler) bind(c *gin.Context, body any) bool {
	err := c.ShouldBindJSON(body)
	if err == nil {
		return true
	}

	resp := errorResponse{
		Error: "Invalid request body",
		Code:  "VALIDATION_ERROR",
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		resp.Error = "Validation failed"
		resp.Fields = make(map[string]string, len(verrs))
		for _, fe := range verrs {
			resp.Fields[fe.Field()] = validationMessage(fe)
		}
	}

	c.AbortWithStatusJSON(http.StatusBadRequest, resp)
	return false
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "nefield":
		return "must differ from " + fe.Param()
	default:
		return "is invalid"
	}
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status, code, msg := classify(err)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: msg, Code: code})
}

func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", ErrInvalidCredentials.Error()
	case errors.Is(err, ErrAccountLocked):
		return http.StatusLocked, "ACCOUNT_LOCKED", "Account temporarily locked due to too many failed login attempts"
	case errors.Is(err, ErrInvalidSession):
		return http.StatusUnauthorized, "INVALID_SESSION", ErrInvalidSession.Error()
	case errors.Is(err, ErrTokenRevoked):
		return http.StatusUnauthorized, "TOKEN_REVOKED", ErrTokenRevoked.Error()
	case errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized, "INVALID_TOKEN", ErrInvalidToken.Error()
	case errors.Is(err, ErrUserExists):
		return http.StatusConflict, "USER_EXISTS", "An account with this email already exists"
	case errors.Is(err, ErrWeakPassword):
		return http.StatusBadRequest, "WEAK_PASSWORD", err.Error()
	case errors.Is(err, ErrUserNotFound):
		return http.StatusNotFound, "USER_NOT_FOUND", ErrUserNotFound.Error()
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error"
	}
}

func clientMeta(c *gin.Context) ClientMeta {
	meta := ClientMeta{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		DeviceInfo: DeviceInfo{
			"userAgent": c.Request.UserAgent(),
		},
	}
	if fp := c.GetHeader("X-Device-Fingerprint"); fp != "" {
		meta.DeviceInfo["fingerprint"] = fp
	}
	if platform := c.GetHeader("Sec-CH-UA-Platform"); platform != "" {
		meta.DeviceInfo["platform"] = strings.Trim(platform, `"`)
	}
	return meta
}

var registerOnce sync.Once

// registerJSONFieldNames makes validation errors report JSON field names.
func registerJSONFieldNames() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
}
