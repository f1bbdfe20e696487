// Package gateway exposes the screening controllers over HTTP.
package gateway

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cv-screening/internal/backend"
	apperrors "cv-screening/internal/common/errors"
	"cv-screening/internal/common/logger"
	"cv-screening/internal/controllers/longlist"
	"cv-screening/internal/controllers/shortlist"
	"cv-screening/internal/models"
	"cv-screening/internal/session"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// multipart framing allowance on top of the file size limit
const uploadOverhead = 1 << 20

// AuthService is the auth collaborator.
type AuthService interface {
	Login(ctx context.Context, email, password string) (*backend.LoginResult, error)
	VerifyLogin(ctx context.Context, userID, otp string) (*backend.Verified, error)
	ResendOTP(ctx context.Context, userID string) error
	Register(ctx context.Context, reg backend.Registration) (string, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, resetToken, newPassword, confirm string) error
	ChangePassword(ctx context.Context, oldPassword, newPassword, confirm string) error
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdateCVAccess(ctx context.Context, userID string, access bool) error
}

// Deps are the collaborators a Server routes to.
type Deps struct {
	Session        *session.Manager
	Timer          *session.Timer
	Notices        *Notices
	Auth           AuthService
	LongList       *longlist.Controller
	ShortList      *shortlist.Controller
	Logger         logger.Logger
	Metrics        http.Handler
	MaxUploadBytes int64
}

type Server struct {
	session   *session.Manager
	timer     *session.Timer
	notices   *Notices
	auth      AuthService
	longlist  *longlist.Controller
	shortlist *shortlist.Controller
	logger    logger.Logger
	errors    *apperrors.ErrorHandler
	metrics   http.Handler
	maxUpload int64
	unsub     func()
	stopWatch context.CancelFunc
}

// New builds a Server and ties screening state to the session: logging out,
// for any reason, stops the timer and clears the screening state.
func New(d Deps) *Server {
	log := d.Logger.WithFields(map[string]interface{}{"component": "gateway"})
	s := &Server{
		session:   d.Session,
		timer:     d.Timer,
		notices:   d.Notices,
		auth:      d.Auth,
		longlist:  d.LongList,
		shortlist: d.ShortList,
		logger:    log,
		errors:    apperrors.NewErrorHandler(log),
		metrics:   d.Metrics,
		maxUpload: d.MaxUploadBytes,
	}
	if s.notices == nil {
		s.notices = NewNotices()
	}

	s.unsub = s.session.OnLogout(func(reason string) {
		if s.timer != nil {
			s.timer.Stop()
		}
		s.shortlist.CancelRank()
		s.longlist.Reset(context.Background())
		s.logger.Info("screening state cleared on logout", map[string]interface{}{"reason": reason})
	})

	watchCtx, stop := context.WithCancel(context.Background())
	s.stopWatch = stop
	go s.shortlist.Watch(watchCtx)
	return s
}

// Close detaches the server from the session and the store, and stops the
// timer.
func (s *Server) Close() {
	if s.unsub != nil {
		s.unsub()
	}
	if s.stopWatch != nil {
		s.stopWatch()
	}
	if s.timer != nil {
		s.timer.Stop()
	}
}

// StartTimer begins expiry polling for an already authenticated session,
// e.g. one restored at startup.
func (s *Server) StartTimer(ctx context.Context) {
	if s.timer != nil && s.session.IsAuthenticated() {
		s.timer.Start(ctx)
	}
}

func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
	})
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}

	authGroup := r.Group("/api/auth")
	{
		authGroup.POST("/login", s.login)
		authGroup.POST("/verify", s.verify)
		authGroup.POST("/resend-otp", s.resendOTP)
		authGroup.POST("/register", s.register)
		authGroup.POST("/forgot-password", s.forgotPassword)
		authGroup.POST("/reset-password", s.resetPassword)
		authGroup.POST("/logout", s.logout)
		authGroup.GET("/session", s.sessionStatus)
		authGroup.POST("/change-password", s.requireAuth(), s.changePassword)
	}

	admin := r.Group("/api/admin", s.requireAuth(), s.requireAdmin())
	{
		admin.GET("/users", s.listUsers)
		admin.PATCH("/users/:id/cv-access", s.updateCVAccess)
	}

	ll := r.Group("/api/longlist", s.requireAuth())
	{
		ll.GET("", s.getLongList)
		ll.PATCH("/criteria", s.changeFilter)
		ll.POST("/criteria/reset", s.resetFilters)
		ll.POST("/upload", s.upload)
		ll.DELETE("/upload", s.cancelUpload)
		ll.POST("/move", s.moveToShortlist)
		ll.POST("/reset", s.resetLongList)
	}

	sl := r.Group("/api/shortlist", s.requireAuth())
	{
		sl.GET("", s.getShortList)
		sl.PUT("/parameters", s.setParameters)
		sl.POST("/weights/adjust", s.adjustWeight)
		sl.POST("/rank", s.rank)
		sl.DELETE("/rank", s.cancelRank)
		sl.POST("/reset", s.resetRanking)
		sl.GET("/export", s.export)
	}

	return r
}

// ==========================
// Auth
// ==========================

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "auth.login", err.Error())
		return
	}
	res, err := s.auth.Login(c.Request.Context(), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		s.fail(c, "auth.login", err, nil)
		return
	}
	ok(c, gin.H{"userId": res.UserID, "message": res.Message})
}

type verifyRequest struct {
	UserID string `json:"userId" binding:"required"`
	OTP    string `json:"otp" binding:"required"`
}

func (s *Server) verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "auth.verify", err.Error())
		return
	}
	verified, err := s.auth.VerifyLogin(c.Request.Context(), req.UserID, req.OTP)
	if err != nil {
		s.fail(c, "auth.verify", err, nil)
		return
	}
	if err := s.session.Login(c.Request.Context(), verified.Token, verified.User); err != nil {
		s.fail(c, "auth.verify", err, nil)
		return
	}

	s.notices.Clear()
	if s.timer != nil {
		s.timer.Start(context.Background())
	}
	ok(c, s.sessionView())
}

type userIDRequest struct {
	UserID string `json:"userId" binding:"required"`
}

func (s *Server) resendOTP(c *gin.Context) {
	var req userIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "auth.resend_otp", err.Error())
		return
	}
	if err := s.auth.ResendOTP(c.Request.Context(), req.UserID); err != nil {
		s.fail(c, "auth.resend_otp", err, nil)
		return
	}
	message(c, "A new code has been sent")
}

func (s *Server) register(c *gin.Context) {
	var req backend.Registration
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "auth.register", err.Error())
		return
	}
	msg, err := s.auth.Register(c.Request.Context(), req)
	if err != nil {
		s.fail(c, "auth.register", err, nil)
		return
	}
	message(c, msg)
}

type emailRequest struct {
	Email string `json:"email" binding:"required"`
}

func (s *Server) forgotPassword(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "auth.forgot_password", err.Error())
		return
	}
	if err := s.auth.ForgotPassword(c.Request.Context(), strings.TrimSpace(req.Email)); err != nil {
		s.fail(c, "auth.forgot_password", err, nil)
		return
	}
	message(c, "If the address is registered, a reset link has been sent")
}

type resetPasswordRequest struct {
	Token           string `json:"token" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
	ConfirmPassword string `json:"confirmPassword" binding:"required"`
}

func (s *Server) resetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "auth.reset_password", err.Error())
		return
	}
	if err := s.auth.ResetPassword(c.Request.Context(), req.Token, req.NewPassword, req.ConfirmPassword); err != nil {
		s.fail(c, "auth.reset_password", err, nil)
		return
	}
	message(c, "Password has been reset")
}

type changePasswordRequest struct {
	OldPassword     string `json:"oldPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
	ConfirmPassword string `json:"confirmPassword" binding:"required"`
}

func (s *Server) changePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "auth.change_password", err.Error())
		return
	}
	if err := s.auth.ChangePassword(c.Request.Context(), req.OldPassword, req.NewPassword, req.ConfirmPassword); err != nil {
		s.fail(c, "auth.change_password", err, nil)
		return
	}
	message(c, "Password has been changed")
}

func (s *Server) logout(c *gin.Context) {
	s.session.Logout(c.Request.Context(), session.ReasonUser)
	message(c, "Logged out")
}

type sessionView struct {
	Authenticated    bool         `json:"authenticated"`
	User             *models.User `json:"user,omitempty"`
	DisplayName      string       `json:"displayName,omitempty"`
	MinutesRemaining int          `json:"minutesRemaining"`
	ExpiresAt        *time.Time   `json:"expiresAt,omitempty"`
	Notice           *Notice      `json:"notice,omitempty"`
}

func (s *Server) sessionView() sessionView {
	v := sessionView{
		Authenticated: s.session.IsAuthenticated(),
		Notice:        s.notices.Latest(),
	}
	if !v.Authenticated {
		return v
	}
	v.MinutesRemaining = s.session.MinutesRemaining()
	if snap := s.session.Snapshot(); snap != nil {
		v.User = snap.User
		exp := snap.ExpiresAt
		v.ExpiresAt = &exp
		if snap.User != nil {
			v.DisplayName = snap.User.DisplayName()
		}
	}
	return v
}

func (s *Server) sessionStatus(c *gin.Context) {
	ok(c, s.sessionView())
}

// ==========================
// Admin
// ==========================

type userView struct {
	models.User
	DisplayName  string `json:"displayName"`
	AccessStatus string `json:"accessStatus"`
}

func (s *Server) listUsers(c *gin.Context) {
	users, err := s.auth.ListUsers(c.Request.Context())
	if err != nil {
		s.fail(c, "admin.list_users", err, nil)
		return
	}
	out := make([]userView, 0, len(users))
	for _, u := range users {
		out = append(out, userView{User: u, DisplayName: u.DisplayName(), AccessStatus: u.AccessStatus()})
	}
	ok(c, out)
}

type cvAccessRequest struct {
	CVAccess *bool `json:"cvAccess" binding:"required"`
}

func (s *Server) updateCVAccess(c *gin.Context) {
	var req cvAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "admin.update_cv_access", err.Error())
		return
	}
	userID := c.Param("id")
	if err := s.auth.UpdateCVAccess(c.Request.Context(), userID, *req.CVAccess); err != nil {
		s.fail(c, "admin.update_cv_access", err, nil)
		return
	}
	ok(c, gin.H{"userId": userID, "cvAccess": *req.CVAccess})
}

// ==========================
// Long list
// ==========================

func (s *Server) getLongList(c *gin.Context) {
	ok(c, s.longlist.View())
}

func (s *Server) changeFilter(c *gin.Context) {
	var raw map[string]interface{}
	if err := c.ShouldBindJSON(&raw); err != nil {
		s.fail(c, "longlist.change_filter", apperrors.NewInvalidFilterFormatError(err.Error()), nil)
		return
	}
	view, err := s.longlist.ChangeFilter(c.Request.Context(), raw)
	if err != nil {
		s.fail(c, "longlist.change_filter", err, view)
		return
	}
	ok(c, view)
}

func (s *Server) resetFilters(c *gin.Context) {
	ok(c, s.longlist.ResetFilters(c.Request.Context()))
}

func (s *Server) upload(c *gin.Context) {
	if s.maxUpload > 0 && c.Request.ContentLength > s.maxUpload+uploadOverhead {
		s.fail(c, "longlist.upload", apperrors.NewUploadTooLargeError(c.Request.ContentLength, s.maxUpload), s.longlist.View())
		return
	}

	header, err := c.FormFile("cv_file")
	if err != nil {
		s.fail(c, "longlist.upload", apperrors.NewInvalidUploadFileError("multipart field cv_file is required"), s.longlist.View())
		return
	}
	file, err := header.Open()
	if err != nil {
		s.fail(c, "longlist.upload", apperrors.NewInvalidUploadFileError(err.Error()), s.longlist.View())
		return
	}
	defer file.Close()

	view, err := s.longlist.Upload(c.Request.Context(), header.Filename, header.Size, file)
	if err != nil {
		s.fail(c, "longlist.upload", err, view)
		return
	}
	ok(c, view)
}

func (s *Server) cancelUpload(c *gin.Context) {
	ok(c, gin.H{"cancelled": s.longlist.CancelUpload()})
}

func (s *Server) moveToShortlist(c *gin.Context) {
	handoff, err := s.longlist.MoveToShortlist(c.Request.Context())
	if err != nil {
		s.fail(c, "longlist.move", err, nil)
		return
	}
	ok(c, gin.H{"batchId": handoff.BatchID, "candidates": len(handoff.Candidates), "shortlist": s.shortlist.View()})
}

func (s *Server) resetLongList(c *gin.Context) {
	s.shortlist.CancelRank()
	ok(c, s.longlist.Reset(c.Request.Context()))
}

// ==========================
// Short list
// ==========================

func (s *Server) getShortList(c *gin.Context) {
	ok(c, s.shortlist.View())
}

func (s *Server) setParameters(c *gin.Context) {
	var p shortlist.Parameters
	if err := c.ShouldBindJSON(&p); err != nil {
		s.badRequest(c, "shortlist.set_parameters", err.Error())
		return
	}
	if _, err := s.shortlist.SetParameters(p); err != nil {
		s.fail(c, "shortlist.set_parameters", err, s.shortlist.View())
		return
	}
	ok(c, s.shortlist.View())
}

type adjustWeightRequest struct {
	Field     string `json:"field" binding:"required"`
	Direction string `json:"direction" binding:"required,oneof=up down"`
}

func (s *Server) adjustWeight(c *gin.Context) {
	var req adjustWeightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "shortlist.adjust_weight", err.Error())
		return
	}
	if _, err := s.shortlist.AdjustWeight(req.Field, req.Direction == "up"); err != nil {
		s.fail(c, "shortlist.adjust_weight", err, s.shortlist.View())
		return
	}
	ok(c, s.shortlist.View())
}

func (s *Server) rank(c *gin.Context) {
	view, err := s.shortlist.Rank(c.Request.Context())
	if err != nil {
		s.fail(c, "shortlist.rank", err, view)
		return
	}
	ok(c, view)
}

func (s *Server) cancelRank(c *gin.Context) {
	ok(c, gin.H{"cancelled": s.shortlist.CancelRank()})
}

func (s *Server) resetRanking(c *gin.Context) {
	ok(c, s.shortlist.ResetRanking(c.Request.Context()))
}

func (s *Server) export(c *gin.Context) {
	var buf bytes.Buffer
	if err := s.shortlist.Export(&buf); err != nil {
		s.fail(c, "shortlist.export", err, nil)
		return
	}
	filename := fmt.Sprintf("shortlist-%d.xlsx", s.shortlist.View().BatchID)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
