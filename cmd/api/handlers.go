package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"classhub/internal/attendance"
	"classhub/internal/auth"
	"classhub/internal/class"
	"classhub/internal/config"
	"classhub/internal/live"
	"classhub/internal/notification"
	"classhub/internal/user"
	"classhub/internal/zoomclient"
)

type api struct {
	cfg     config.App
	log     *zap.Logger
	users   *user.Repository
	classes *class.Service
	live    *live.Service
	att     *attendance.Service
	notifs  *notification.Repository
	zoom    *zoomclient.Client
}

// fail maps domain errors onto the 4xx taxonomy; anything unexpected is
// logged and surfaced as a generic 500 so clients can tell "invalid request"
// from "try again later".
func (a *api) fail(c *gin.Context, err error) {
	var status int
	switch {
	case errors.Is(err, class.ErrNotFound) || errors.Is(err, user.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, class.ErrPermissionDenied),
		errors.Is(err, live.ErrNotEnrolled),
		errors.Is(err, live.ErrInvalidToken),
		errors.Is(err, live.ErrTokenExpired):
		status = http.StatusForbidden
	case errors.Is(err, live.ErrClassNotLive),
		errors.Is(err, live.ErrNotApplicable),
		errors.Is(err, live.ErrSessionActive),
		errors.Is(err, live.ErrTokenRequired),
		errors.Is(err, attendance.ErrTooEarly),
		errors.Is(err, attendance.ErrAlreadyMarked):
		status = http.StatusBadRequest
	default:
		a.log.Error("internal error", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (a *api) register(c *gin.Context) {
	var req struct {
		Name     string `json:"name" binding:"required"`
		Email    string `json:"email" binding:"required,email"`
		Phone    string `json:"phone"`
		Password string `json:"password" binding:"required,min=6"`
		Role     string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Role == "" {
		req.Role = auth.RoleStudent
	}
	if req.Role != auth.RoleStudent && req.Role != auth.RoleTeacher {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be student or teacher"})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		a.fail(c, err)
		return
	}
	u, err := a.users.Create(c.Request.Context(), user.User{
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		Role:         req.Role,
		PasswordHash: hash,
	})
	if err != nil {
		a.fail(c, err)
		return
	}

	token, err := auth.Issue(u.ID, u.Role, u.Name, a.cfg.JWTIssuer, a.cfg.JWTSigningKey, a.cfg.AccessTTL)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"user":         u,
		"access_token": token.Value,
		"expires_at":   token.ExpiresAt.Unix(),
	})
}

func (a *api) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	u, err := a.users.GetByEmail(c.Request.Context(), req.Email)
	if err != nil || !auth.CheckPassword(u.PasswordHash, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := auth.Issue(u.ID, u.Role, u.Name, a.cfg.JWTIssuer, a.cfg.JWTSigningKey, a.cfg.AccessTTL)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":         u,
		"access_token": token.Value,
		"expires_at":   token.ExpiresAt.Unix(),
	})
}

type scheduleInput struct {
	Date       string   `json:"date"` // YYYY-MM-DD
	StartTime  string   `json:"start_time"`
	EndTime    string   `json:"end_time"`
	Frequency  string   `json:"frequency"`
	CustomDays []string `json:"custom_days"`
}

func (in scheduleInput) toSchedule() (class.Schedule, error) {
	s := class.Schedule{
		StartTime:  in.StartTime,
		EndTime:    in.EndTime,
		Frequency:  in.Frequency,
		CustomDays: in.CustomDays,
	}
	if in.Date != "" {
		d, err := time.Parse("2006-01-02", in.Date)
		if err != nil {
			return class.Schedule{}, err
		}
		s.Date = d
	}
	return s, nil
}

func (a *api) createClass(c *gin.Context) {
	var req struct {
		Title       string        `json:"title" binding:"required"`
		Description string        `json:"description"`
		Schedule    scheduleInput `json:"schedule"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sched, err := req.Schedule.toSchedule()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims := auth.FromContext(c)
	created, err := a.classes.Create(c.Request.Context(), claims.Subject, req.Title, req.Description, sched)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (a *api) listClasses(c *gin.Context) {
	list, err := a.classes.List(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"classes": list})
}

func (a *api) getClass(c *gin.Context) {
	cls, err := a.classes.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cls)
}

func (a *api) updateClass(c *gin.Context) {
	var req struct {
		Title       string        `json:"title" binding:"required"`
		Description string        `json:"description"`
		Schedule    scheduleInput `json:"schedule"`
		IsActive    *bool         `json:"is_active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sched, err := req.Schedule.toSchedule()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	claims := auth.FromContext(c)
	updated, err := a.classes.Update(c.Request.Context(), c.Param("id"), claims.Subject, class.Class{
		Title:       req.Title,
		Description: req.Description,
		Schedule:    sched,
		IsActive:    isActive,
	})
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (a *api) deleteClass(c *gin.Context) {
	claims := auth.FromContext(c)
	if err := a.classes.Delete(c.Request.Context(), c.Param("id"), claims.Subject); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "class deleted"})
}

func (a *api) enroll(c *gin.Context) {
	var req struct {
		StudentID string `json:"student_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := a.users.GetByID(c.Request.Context(), req.StudentID); err != nil {
		a.fail(c, err)
		return
	}
	if err := a.classes.Enroll(c.Request.Context(), c.Param("id"), req.StudentID); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "student enrolled"})
}

func (a *api) startLive(c *gin.Context) {
	claims := auth.FromContext(c)
	cls, err := a.classes.StartLive(c.Request.Context(), c.Param("id"), claims.Subject)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":       "class is now live",
		"isLive":        true,
		"liveStartedAt": cls.LiveStartedAt,
		"roomName":      cls.RoomName,
		"meetingLink":   cls.MeetingLink,
	})
}

func (a *api) endLive(c *gin.Context) {
	claims := auth.FromContext(c)
	if _, err := a.classes.EndLive(c.Request.Context(), c.Param("id"), claims.Subject); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "class ended", "isLive": false})
}

func (a *api) liveStatus(c *gin.Context) {
	cls, err := a.classes.LiveStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"isLive":        cls.IsLive,
		"liveStartedAt": cls.LiveStartedAt,
		"title":         cls.Title,
	})
}

func (a *api) requestJoinToken(c *gin.Context) {
	claims := auth.FromContext(c)
	grant, err := a.live.RequestJoinToken(c.Request.Context(), c.Param("id"), claims.Subject)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, grant)
}

func (a *api) jitsiConfig(c *gin.Context) {
	claims := auth.FromContext(c)
	cfg, err := a.live.JoinConfig(c.Request.Context(), c.Param("id"), claims.Subject, c.Query("token"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (a *api) endSession(c *gin.Context) {
	claims := auth.FromContext(c)
	if err := a.live.EndSession(c.Request.Context(), c.Param("id"), claims.Subject); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "session ended"})
}

func (a *api) createZoomMeeting(c *gin.Context) {
	if !a.zoom.Configured() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "zoom not configured"})
		return
	}
	claims := auth.FromContext(c)
	cls, err := a.classes.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	if cls.TeacherID != claims.Subject {
		a.fail(c, class.ErrPermissionDenied)
		return
	}

	start := time.Now()
	if at, err := cls.Schedule.StartAt(start); err == nil {
		start = at
	}
	meeting, err := a.zoom.CreateMeeting(c.Request.Context(), cls.Title, start)
	if err != nil {
		a.log.Error("zoom create meeting failed", zap.String("class_id", cls.ID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "zoom meeting creation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"meetingId": meeting.ID,
		"joinUrl":   meeting.JoinURL,
		"startUrl":  meeting.StartURL,
	})
}

func (a *api) getZoomMeeting(c *gin.Context) {
	if !a.zoom.Configured() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "zoom not configured"})
		return
	}
	details, err := a.zoom.GetMeeting(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.log.Error("zoom get meeting failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "zoom meeting lookup failed"})
		return
	}
	c.JSON(http.StatusOK, details)
}

func (a *api) markAttendance(c *gin.Context) {
	var req struct {
		JoinTime time.Time `json:"join_time"`
	}
	// Body is optional; default the join time to now.
	_ = c.ShouldBindJSON(&req)
	if req.JoinTime.IsZero() {
		req.JoinTime = time.Now()
	}

	claims := auth.FromContext(c)
	rec, err := a.att.Mark(c.Request.Context(), c.Param("classId"), claims.Subject, req.JoinTime)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "attendance marked successfully", "attendance": rec})
}

// canViewClassAttendance allows the owning teacher and admins.
func (a *api) canViewClassAttendance(c *gin.Context, classID string) (bool, error) {
	claims := auth.FromContext(c)
	if claims.Role == auth.RoleAdmin {
		return true, nil
	}
	cls, err := a.classes.Get(c.Request.Context(), classID)
	if err != nil {
		return false, err
	}
	return cls.TeacherID == claims.Subject, nil
}

func (a *api) classAttendance(c *gin.Context) {
	ok, err := a.canViewClassAttendance(c, c.Param("classId"))
	if err != nil {
		a.fail(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
		return
	}
	records, err := a.att.ListByClass(c.Request.Context(), c.Param("classId"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attendance": records})
}

func (a *api) attendanceSummary(c *gin.Context) {
	ok, err := a.canViewClassAttendance(c, c.Param("classId"))
	if err != nil {
		a.fail(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
		return
	}
	summary, err := a.att.Summary(c.Request.Context(), c.Param("classId"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (a *api) studentAttendance(c *gin.Context) {
	classID, studentID := c.Param("classId"), c.Param("studentId")
	claims := auth.FromContext(c)
	if claims.Subject != studentID {
		ok, err := a.canViewClassAttendance(c, classID)
		if err != nil {
			a.fail(c, err)
			return
		}
		if !ok {
			c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}
	}
	summary, err := a.att.StudentSummary(c.Request.Context(), classID, studentID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (a *api) listNotifications(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	claims := auth.FromContext(c)
	list, err := a.notifs.ListForUser(c.Request.Context(), claims.Subject, limit)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list})
}

func (a *api) readNotification(c *gin.Context) {
	claims := auth.FromContext(c)
	if err := a.notifs.MarkRead(c.Request.Context(), c.Param("id"), claims.Subject); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
