package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"classhub/internal/app"
	"classhub/internal/attendance"
	"classhub/internal/auth"
	"classhub/internal/class"
	"classhub/internal/config"
	"classhub/internal/httpmiddleware"
	"classhub/internal/live"
	"classhub/internal/notification"
	"classhub/internal/store"
	"classhub/internal/user"
	"classhub/internal/zoomclient"
)

func main() {
	cfg := config.Load()
	logger := app.NewLogger(cfg.Env)
	defer logger.Sync()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, logger); err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, logger *zap.Logger) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(context.Background(), cfg.MigrationsDir); err != nil {
		return err
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	classRepo := class.NewRepository(db.Client)
	userRepo := user.NewRepository(db.Client)

	srv := &api{
		cfg:     cfg,
		log:     logger,
		users:   userRepo,
		classes: class.NewService(classRepo, cfg.RoomPrefix, cfg.JitsiDomain),
		live:    live.NewService(classRepo, userRepo, live.NewStore(db.Client), cfg.JoinTokenTTL, cfg.JitsiDomain),
		att:     attendance.NewService(classRepo, attendance.NewRepository(db.Client), cfg.AttendanceDelay),
		notifs:  notification.NewRepository(db.Client),
		zoom:    zoomclient.New(cfg.ZoomAccountID, cfg.ZoomClientID, cfg.ZoomClientSecret),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	r.POST("/auth/register", srv.register)
	r.POST("/auth/login", srv.login)

	authed := r.Group("/", auth.UserAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	classes := authed.Group("/classes")
	classes.GET("", srv.listClasses)
	classes.POST("", auth.RequireRole(auth.RoleTeacher), srv.createClass)
	classes.GET("/:id", srv.getClass)
	classes.PUT("/:id", auth.RequireRole(auth.RoleTeacher), srv.updateClass)
	classes.DELETE("/:id", auth.RequireRole(auth.RoleTeacher), srv.deleteClass)
	classes.POST("/:id/enroll", auth.RequireRole(auth.RoleTeacher, auth.RoleAdmin), srv.enroll)
	classes.POST("/:id/start-live", auth.RequireRole(auth.RoleTeacher), srv.startLive)
	classes.POST("/:id/end-live", auth.RequireRole(auth.RoleTeacher), srv.endLive)
	classes.GET("/:id/live-status", srv.liveStatus)
	classes.POST("/:id/request-join-token", srv.requestJoinToken)
	classes.GET("/:id/jitsi-config", srv.jitsiConfig)
	classes.POST("/:id/end-session", srv.endSession)
	classes.POST("/:id/zoom-meeting", auth.RequireRole(auth.RoleTeacher), srv.createZoomMeeting)

	authed.GET("/zoom/meetings/:id", auth.RequireRole(auth.RoleTeacher), srv.getZoomMeeting)

	att := authed.Group("/attendance")
	att.POST("/mark/:classId", srv.markAttendance)
	att.GET("/class/:classId", srv.classAttendance)
	att.GET("/summary/:classId", srv.attendanceSummary)
	att.GET("/student/:classId/:studentId", srv.studentAttendance)

	authed.GET("/notifications", srv.listNotifications)
	authed.POST("/notifications/:id/read", srv.readNotification)

	httpSrv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.HTTPPort))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced shutdown", zap.Error(err))
	}

	logger.Info("server exited")
	return nil
}

// corsMiddleware allows browser requests from the web frontend.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
