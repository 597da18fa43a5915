package http

import (
	"context"
	"net/http"
	"time"

	"github.com/dkeye/Chat/internal/adapters/signal"
	"github.com/dkeye/Chat/internal/app/orch"
	"github.com/dkeye/Chat/internal/auth"
	"github.com/dkeye/Chat/internal/config"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// AuthService is the authentication collaborator the API exposes.
type AuthService interface {
	Register(ctx context.Context, in auth.RegisterInput) (domain.User, error)
	Login(ctx context.Context, email, password string) (auth.Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	ValidateToken(ctx context.Context, token string) (domain.Identity, error)
	Me(ctx context.Context, id domain.UserID) (domain.User, error)
}

// RoomStore is the persistence the REST API reads and writes directly.
type RoomStore interface {
	CreateRoom(ctx context.Context, r domain.Room) (domain.Room, error)
	GetRoom(ctx context.Context, id domain.RoomID) (domain.Room, error)
	ListRooms(ctx context.Context, viewer domain.UserID) ([]domain.Room, error)
	GetMessages(ctx context.Context, room domain.RoomID, limit int, before time.Time) ([]domain.Message, error)
}

type API struct {
	Orch         *orch.Orchestrator
	Auth         AuthService
	Rooms        RoomStore
	Signal       *signal.SignalWSController
	HistoryLimit int
}

func SetupRouter(ctx context.Context, cfg *config.Config, api *API) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(RequestLogger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: int(cfg.JWT.AccessTTL.Seconds()), HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions("ChatSessions", store))

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"connections": api.Orch.Registry.Count(),
			"rooms":       len(api.Orch.Rooms.Loaded()),
		})
	})

	apiGroup := r.Group("/api")

	authGroup := apiGroup.Group("/auth")
	authGroup.POST("/register", api.register)
	authGroup.POST("/login", api.login)
	authGroup.POST("/refresh-token", api.refresh)
	authGroup.POST("/logout", api.logout)
	authGroup.GET("/me", AuthMiddleware(api.Auth), api.me)

	chat := apiGroup.Group("/chat", AuthMiddleware(api.Auth))
	chat.POST("/rooms", api.createRoom)
	chat.GET("/rooms", api.listRooms)
	chat.POST("/rooms/:roomId/join", api.joinRoom)
	chat.POST("/rooms/:roomId/leave", api.leaveRoom)
	chat.GET("/rooms/:roomId/messages", api.roomMessages)
	chat.POST("/messages", api.postMessage)

	apiGroup.GET("/ws", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("remote", c.ClientIP()).Msg("ws endpoint hit")
		api.Signal.HandleSignal(ctx, c, TokenFromRequest(c))
	})

	return r
}
