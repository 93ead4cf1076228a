package handler

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/hostel-bed-holds/internal/clock"
	"github.com/iliyamo/hostel-bed-holds/internal/logger"
	"github.com/iliyamo/hostel-bed-holds/internal/middleware"
	"github.com/iliyamo/hostel-bed-holds/internal/utils"
)

// AuthConfig holds the single admin account.  An empty PasswordHash
// disables login.
type AuthConfig struct {
	Secret       string
	Username     string
	PasswordHash string
	AccessTTL    time.Duration
}

// AuthHandler issues admin access tokens.
type AuthHandler struct {
	Cfg    AuthConfig
	Clock  clock.Clock
	Logger *zap.Logger
}

func NewAuthHandler(cfg AuthConfig, clk clock.Clock, l *zap.Logger) *AuthHandler {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &AuthHandler{Cfg: cfg, Clock: clk, Logger: logger.OrNop(l)}
}

type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login handles POST /admin/login.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, CodeInvalidRequest, "invalid request body")
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return fail(c, http.StatusBadRequest, CodeInvalidRequest, "username and password are required")
	}
	if h.Cfg.PasswordHash == "" {
		return fail(c, http.StatusForbidden, "forbidden", "admin login is disabled")
	}

	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.Cfg.Username)) == 1
	passOK := utils.VerifyPassword(h.Cfg.PasswordHash, req.Password)
	if !userOK || !passOK {
		h.Logger.Warn("admin login failed", zap.String("username", req.Username), zap.String("remote_ip", c.RealIP()))
		return fail(c, http.StatusUnauthorized, "unauthorized", "invalid credentials")
	}

	tok, err := utils.NewAccessToken(h.Cfg.Secret, h.Cfg.Username, utils.RoleAdmin, h.Cfg.AccessTTL, h.Clock.Now())
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	h.Logger.Info("admin logged in", zap.String("username", h.Cfg.Username))
	return c.JSON(http.StatusOK, echo.Map{
		"ok":          true,
		"accessToken": tok.Token,
		"expiresAt":   tok.Exp,
		"role":        utils.RoleAdmin,
	})
}

// Me handles GET /admin/me.
func (h *AuthHandler) Me(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"ok":       true,
		"username": c.Get(middleware.ContextUserID),
		"role":     c.Get(middleware.ContextRole),
	})
}
