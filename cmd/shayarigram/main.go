package main

import (
	"bytes"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/shayarigram/shayarigram/internal/auth"
	"github.com/shayarigram/shayarigram/internal/db"
	"github.com/shayarigram/shayarigram/internal/handlers"
	"github.com/shayarigram/shayarigram/internal/navigation"
	"github.com/shayarigram/shayarigram/internal/push"
	"github.com/shayarigram/shayarigram/internal/relations"
	"github.com/shayarigram/shayarigram/internal/ws"
	"github.com/shayarigram/shayarigram/pkg/config"
	"github.com/shayarigram/shayarigram/pkg/i18n"
)

var __ = i18n.Translate

func rateLimitMiddleware(limiterInstance *limiter.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		limiterContext, err := limiterInstance.Get(c.Request.Context(), c.ClientIP())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": __("rate limiter error")})
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", limiterContext.Limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", limiterContext.Remaining))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", limiterContext.Reset))

		if limiterContext.Reached {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": __("rate limit exceeded")})
			c.Abort()
			return
		}

		c.Next()
	}
}

type responseBodyWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w responseBodyWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w responseBodyWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

func serverErrorLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		blw := &responseBodyWriter{body: bytes.NewBuffer(nil), ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Printf(
				"HTTP %d %s %s ip=%s duration=%s errors=%q response=%q",
				c.Writer.Status(),
				c.Request.Method,
				c.Request.URL.Path,
				c.ClientIP(),
				time.Since(start).Truncate(time.Millisecond),
				c.Errors.ByType(gin.ErrorTypeAny).String(),
				strings.TrimSpace(blw.body.String()),
			)
		}
	}
}

func panicRecovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		log.Printf(
			"panic recovered method=%s path=%s ip=%s error=%v\n%s",
			c.Request.Method,
			c.Request.URL.Path,
			c.ClientIP(),
			recovered,
			debug.Stack(),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": __("internal server error")})
	})
}

func main() {
	cfg := config.Load()

	if len(os.Args) > 1 {
		if err := runCommand(cfg, os.Args[1:]); err != nil {
			log.Fatalf("%v", err)
		}
		return
	}

	if err := runServer(cfg); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func runCommand(cfg *config.Config, args []string) error {
	command := args[0]

	switch command {
	case "status":
		return runStatus(cfg, os.Stdout, args[1:])
	case "-h", "--help", "help":
		printUsage(os.Stdout)
		return nil
	default:
		printUsage(os.Stderr)
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(out *os.File) {
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  shayarigram           Start the API server")
	fmt.Fprintln(out, "  shayarigram status    Show application statistics")
	fmt.Fprintln(out, "  shayarigram status --json")
}

func runServer(cfg *config.Config) error {
	os.MkdirAll(cfg.FileStoragePath, 0755)

	database, err := db.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	conn := database.GetConn()

	authSvc := auth.New(conn, cfg.JWTSecret)
	rel := relations.NewStore(conn)
	nav := navigation.NewStore(conn)
	notifier := push.NewNotifier(conn, cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey)
	if notifier == nil {
		log.Println("VAPID keys not configured, web push disabled")
	}

	hub := ws.NewHub(conn)
	go hub.Run()

	authHandler := handlers.NewAuthHandler(authSvc)
	userHandler := handlers.NewUserHandler(conn, rel, hub, notifier, cfg.FileStoragePath)
	postHandler := handlers.NewPostHandler(conn, rel, hub, notifier)
	commentHandler := handlers.NewCommentHandler(conn, hub, notifier)
	chatHandler := handlers.NewChatHandler(conn, rel, hub, notifier, cfg.FileStoragePath, cfg.MaxUploadSize)
	notifHandler := handlers.NewNotificationHandler(conn, hub, notifier)
	sessionHandler := handlers.NewSessionHandler(conn, nav, hub)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(serverErrorLogger())
	router.Use(gin.Logger())
	router.Use(panicRecovery())
	router.MaxMultipartMemory = cfg.MaxUploadSize

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", cfg.CORSOrigins)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Public endpoints
	api := router.Group("/api")
	{
		loginLimiter := limiter.New(memory.NewStore(), limiter.Rate{Period: time.Minute, Limit: 5})
		registerLimiter := limiter.New(memory.NewStore(), limiter.Rate{Period: time.Minute, Limit: 2})

		api.POST("/auth/register", rateLimitMiddleware(registerLimiter), authHandler.Register)
		api.POST("/auth/login", rateLimitMiddleware(loginLimiter), authHandler.Login)
		api.POST("/auth/reset", rateLimitMiddleware(loginLimiter), authHandler.RequestPasswordReset)
		api.GET("/auth/username-check", authHandler.CheckUsername)
	}

	// Protected endpoints
	protected := api.Group("")
	protected.Use(authHandler.AuthMiddleware())
	{
		// Users and relations
		protected.GET("/users", userHandler.Search)
		protected.GET("/users/:username", userHandler.GetProfile)
		protected.POST("/users/:username/follow", userHandler.ToggleFollow)
		protected.POST("/users/:username/block", userHandler.Block)
		protected.POST("/users/:username/unblock", userHandler.Unblock)
		protected.GET("/blocked", userHandler.GetBlocked)
		protected.PUT("/profile", userHandler.UpdateProfile)
		protected.POST("/profile/avatar", userHandler.UploadAvatar)

		// Posts and engagement
		protected.GET("/feed", postHandler.Feed)
		protected.GET("/explore", postHandler.Explore)
		protected.GET("/saved", postHandler.GetSaved)
		protected.GET("/activity", postHandler.Activity)
		protected.POST("/posts", postHandler.CreatePost)
		protected.GET("/posts/:id", postHandler.GetPost)
		protected.PUT("/posts/:id", postHandler.UpdatePost)
		protected.DELETE("/posts/:id", postHandler.DeletePost)
		protected.POST("/posts/:id/like", postHandler.ToggleLike)
		protected.POST("/posts/:id/save", postHandler.ToggleSave)
		protected.POST("/posts/:id/comments", commentHandler.AddComment)
		protected.POST("/comments/:id/like", commentHandler.ToggleCommentLike)

		// Chats
		protected.POST("/chats", chatHandler.CreateChat)
		protected.GET("/chats", chatHandler.ListChats)
		protected.POST("/chats/delete", chatHandler.BulkDelete)
		protected.GET("/chats/:id/messages", chatHandler.GetMessages)
		protected.POST("/chats/:id/messages", chatHandler.SendMessage)
		protected.POST("/chats/:id/mute", chatHandler.ToggleMute)
		protected.POST("/chats/:id/read", chatHandler.MarkRead)
		protected.POST("/messages/forward", chatHandler.Forward)
		protected.DELETE("/messages/:id", chatHandler.DeleteMessage)
		protected.POST("/uploads", chatHandler.Upload)

		// Notifications and web push
		protected.GET("/notifications", notifHandler.List)
		protected.POST("/notifications/read", notifHandler.MarkAllRead)
		protected.DELETE("/notifications/:id", notifHandler.Delete)
		protected.GET("/push/key", notifHandler.VAPIDKey)
		protected.POST("/push/subscribe", notifHandler.Subscribe)
		protected.POST("/push/unsubscribe", notifHandler.Unsubscribe)

		// Session
		protected.GET("/session/state", sessionHandler.GetState)
		protected.PUT("/session/state", sessionHandler.PutState)
		protected.GET("/presence", sessionHandler.Presence)
	}

	// Serve uploaded files from configured storage path
	router.Static("/api/files", cfg.FileStoragePath)

	// WebSocket endpoint
	router.GET("/ws", authHandler.AuthMiddleware(), hub.HandleWebSocket)

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": __("not found")})
	})

	addr := fmt.Sprintf("0.0.0.0:%s", cfg.Port)
	log.Printf("Starting server on %s", addr)

	// Setup graceful shutdown
	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigint
		log.Println("\nShutting down gracefully...")
		os.Exit(0)
	}()

	if err := router.Run(addr); err != nil {
		return err
	}

	return nil
}
