package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/taskhive/backend/auth"
	"github.com/taskhive/backend/config"
	"github.com/taskhive/backend/controllers"
	"github.com/taskhive/backend/database"
	"github.com/taskhive/backend/middleware"
	"github.com/taskhive/backend/models"
	"github.com/taskhive/backend/store"
	"github.com/taskhive/backend/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.Env,
			AttachStacktrace: true,
		}); err != nil {
			log.Fatal("sentry init: ", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx := context.Background()
	client, err := database.Connect(ctx, cfg.MongoURI)
	if err != nil {
		log.Fatal("mongodb connect: ", err)
	}
	defer func() {
		_ = client.Disconnect(context.Background())
	}()

	db := client.Database(cfg.DatabaseName)
	if err := database.EnsureIndexes(ctx, db); err != nil {
		log.Fatal("ensure indexes: ", err)
	}

	if err := utils.SeedAdminUser(ctx, db.Collection("users")); err != nil {
		log.Fatal(err)
	}

	users := store.NewMongoUserStore(db.Collection("users"))
	tokens := store.NewMongoRefreshTokenStore(db.Collection("refresh_tokens"))
	issuer := auth.NewTokenIssuer(cfg.JWTSecret, cfg.AccessTTL, nil)
	svc := auth.NewService(users, tokens, issuer, auth.ServiceOptions{
		RefreshTTL:       cfg.RefreshTTL,
		ResetTokenTTL:    cfg.ResetTokenTTL,
		MaxLoginAttempts: cfg.MaxLoginAttempts,
		LockDuration:     cfg.LockDuration,
		BcryptCost:       cfg.BcryptCost,
	})

	// Expired and stale revoked tokens are trimmed at startup; there is no
	// background sweep, lock and expiry state is evaluated lazily.
	if err := svc.PurgeExpiredTokens(ctx, cfg.TokenAuditWindow); err != nil {
		log.Print("purge refresh tokens: ", err)
	}

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	allowedOrigins := map[string]bool{}
	for _, origin := range cfg.AllowedOrigins {
		allowedOrigins[origin] = true
	}
	r.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return allowedOrigins[origin]
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	avatarValidator := utils.NewImageValidator()

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", controllers.Register(svc, cfg))
		authGroup.POST("/login", controllers.Login(svc, cfg))
		authGroup.POST("/refresh-token", controllers.Refresh(svc, cfg))
		authGroup.POST("/forgot-password", controllers.ForgotPassword(svc, cfg))
		authGroup.POST("/reset-password/:token", controllers.ResetPassword(svc))

		protected := authGroup.Group("")
		protected.Use(middleware.Protect(svc))
		{
			protected.POST("/logout", controllers.Logout(svc, cfg))
			protected.GET("/profile", controllers.GetProfile(svc))
			protected.PUT("/profile", controllers.UpdateProfile(svc))
			protected.POST("/profile/avatar", controllers.UploadAvatar(svc, avatarValidator))
		}
	}

	// Task and user CRUD routes mount onto this group as well; account
	// status management is the only admin surface owned by the auth core.
	admin := r.Group("/admin")
	admin.Use(middleware.Protect(svc), middleware.RequireRole(models.RoleAdmin))
	{
		admin.PATCH("/users/:id/status", controllers.SetUserStatus(svc))
	}

	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal(err)
	}
}
