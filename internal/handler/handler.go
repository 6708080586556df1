// Package handler exposes registration, login, capture and admin reporting
// over HTTP.
package handler

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"guardattend/internal/attendance"
	"guardattend/internal/auth"
	"guardattend/internal/photos"
	"guardattend/internal/queue"
	"guardattend/internal/tablestore"
	"guardattend/internal/users"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handler holds the dependencies of the HTTP routes.
type Handler struct {
	Users      *users.Repository
	Attendance *attendance.Repository
	Captures   *attendance.Service
	Photos     photos.Store
	// Queue receives capture jobs. When nil, captures are recorded inline.
	Queue    queue.Queue
	Tokens   *auth.Issuer
	AdminKey string
	// Checks are reported by /healthz; any error makes it 503.
	Checks map[string]func(context.Context) error
	Log    *zap.Logger
	Now    func() time.Time
}

// Routes mounts every route on r.
func (h *Handler) Routes(r gin.IRouter) {
	if h.Log == nil {
		h.Log = zap.NewNop()
	}
	if h.Now == nil {
		h.Now = time.Now
	}

	r.GET("/healthz", h.health)

	v1 := r.Group("/v1")
	v1.POST("/register", h.register)
	v1.POST("/login", h.login)
	v1.POST("/admin/login", h.adminLogin)
	v1.POST("/token/refresh", h.refresh)

	guard := v1.Group("/captures", auth.RequireRole(h.Tokens, auth.RoleGuard))
	guard.POST("/photo", h.capturePhoto)
	guard.POST("/qr", h.captureQR)

	admin := v1.Group("/admin", auth.RequireRole(h.Tokens, auth.RoleAdmin))
	admin.GET("/attendance", h.listAttendance)
	admin.GET("/attendance/export", h.exportAttendance)
}

func (h *Handler) health(c *gin.Context) {
	status := http.StatusOK
	out := gin.H{"status": "ok"}
	for name, check := range h.Checks {
		ok := check(c.Request.Context()) == nil
		out[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			out["status"] = "degraded"
		}
	}
	c.JSON(status, out)
}

func (h *Handler) register(c *gin.Context) {
	userID := strings.TrimSpace(c.PostForm("user_id"))
	password := strings.TrimSpace(c.PostForm("password"))
	if userID == "" || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and password are required"})
		return
	}

	ctx := c.Request.Context()
	existing, err := h.Users.Find(ctx, userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if existing != nil {
		h.fail(c, users.ErrDuplicateUser)
		return
	}

	var photoPath string
	if file, err := c.FormFile("photo"); err == nil {
		photoPath, err = h.savePhoto(c, userID, file.Filename)
		if err != nil {
			h.Log.Error("photo upload failed", zap.String("user_id", userID), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "photo upload failed"})
			return
		}
	}

	u := users.User{
		UserID:       userID,
		Name:         c.PostForm("name"),
		Phone:        c.PostForm("phone"),
		Email:        c.PostForm("email"),
		PasswordHash: auth.Digest(password),
		PhotoPath:    photoPath,
	}
	if err := h.Users.Register(ctx, u); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user_id": userID, "photo_path": photoPath})
}

func (h *Handler) login(c *gin.Context) {
	var req struct {
		UserID   string `json:"user_id" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	u, err := h.Users.Find(c.Request.Context(), req.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if u == nil || !auth.Verify(strings.TrimSpace(req.Password), u.PasswordHash) {
		h.fail(c, auth.ErrInvalidCredentials)
		return
	}
	tokens, err := h.Tokens.Issue(u.UserID, auth.RoleGuard)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": tokens, "user": u})
}

func (h *Handler) adminLogin(c *gin.Context) {
	var req struct {
		Key string `json:"key" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !auth.VerifyKey(req.Key, h.AdminKey) {
		h.fail(c, auth.ErrInvalidCredentials)
		return
	}
	tokens, err := h.Tokens.Issue(auth.RoleAdmin, auth.RoleAdmin)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": tokens})
}

// refresh exchanges a refresh token for a new pair. Guard tokens are only
// renewed while the user is still registered.
func (h *Handler) refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	claims, err := h.Tokens.ParseRefresh(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	if claims.Role == auth.RoleGuard {
		u, err := h.Users.Find(c.Request.Context(), claims.Subject)
		if err != nil {
			h.fail(c, err)
			return
		}
		if u == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
	}
	tokens, err := h.Tokens.Issue(claims.Subject, claims.Role)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": tokens})
}

func (h *Handler) capturePhoto(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	file, err := c.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "photo file required"})
		return
	}
	path, err := h.savePhoto(c, claims.Subject, file.Filename)
	if err != nil {
		h.Log.Error("photo upload failed", zap.String("user_id", claims.Subject), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "photo upload failed"})
		return
	}
	h.capture(c, attendance.Capture{
		UserID:    claims.Subject,
		Action:    attendance.ActionLoginPhoto,
		PhotoPath: path,
		Latitude:  c.PostForm("latitude"),
		Longitude: c.PostForm("longitude"),
	})
}

func (h *Handler) captureQR(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	var req struct {
		Action    string `json:"action" binding:"required"`
		Payload   string `json:"payload"`
		Latitude  string `json:"latitude"`
		Longitude string `json:"longitude"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Action != attendance.ActionQRStart && req.Action != attendance.ActionQREnd {
		h.fail(c, attendance.ErrUnknownAction)
		return
	}
	h.capture(c, attendance.Capture{
		UserID:    claims.Subject,
		Action:    req.Action,
		QRPayload: req.Payload,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	})
}

// capture records inline for ?sync=true or without a queue, otherwise
// queues the job and answers 202.
func (h *Handler) capture(c *gin.Context, capt attendance.Capture) {
	if err := capt.Validate(); err != nil {
		h.fail(c, err)
		return
	}
	ctx := c.Request.Context()

	if h.Queue == nil || c.Query("sync") == "true" {
		id, err := h.Captures.Record(ctx, capt)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"record_id": id})
		return
	}

	msg, err := queue.NewMessage(queue.TypeCapture, capt)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.Queue.Publish(ctx, msg); err != nil {
		h.Log.Error("queue publish failed", zap.String("job_id", msg.ID), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "capture queue unavailable"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": msg.ID})
}

func (h *Handler) savePhoto(c *gin.Context, userID, filename string) (string, error) {
	file, err := c.FormFile("photo")
	if err != nil {
		return "", err
	}
	f, err := file.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()
	return h.Photos.Save(c.Request.Context(), photos.ObjectName(userID, filename, h.Now()), f)
}

func filterFrom(c *gin.Context) attendance.Filter {
	return attendance.Filter{
		UserID:   strings.TrimSpace(c.Query("user_id")),
		DateFrom: strings.TrimSpace(c.Query("date_from")),
		DateTo:   strings.TrimSpace(c.Query("date_to")),
		Action:   strings.TrimSpace(c.Query("action")),
	}
}

func (h *Handler) listAttendance(c *gin.Context) {
	recs, err := h.Attendance.Query(c.Request.Context(), filterFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": recs, "count": len(recs)})
}

func (h *Handler) exportAttendance(c *gin.Context) {
	recs, err := h.Attendance.Query(c.Request.Context(), filterFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	var buf bytes.Buffer
	if err := attendance.Export(&buf, recs); err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="attendance_export.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// fail maps domain errors to status codes.
func (h *Handler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, users.ErrDuplicateUser):
		status, msg = http.StatusConflict, "user already exists"
	case errors.Is(err, users.ErrMissingField),
		errors.Is(err, attendance.ErrInvalidFilter),
		errors.Is(err, attendance.ErrEmptyPayload),
		errors.Is(err, attendance.ErrUnknownAction):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, auth.ErrInvalidCredentials):
		status, msg = http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, tablestore.ErrStoreUnavailable):
		status, msg = http.StatusServiceUnavailable, "record store unavailable"
	}
	if status >= 500 {
		h.Log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": msg})
}
