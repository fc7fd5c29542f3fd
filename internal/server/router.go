package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/madhatchatnet/internal/rooms"
	"github.com/MarcoPoloResearchLab/madhatchatnet/internal/session"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultMaxBodyBytes = 4 << 20

var (
	errMissingRoomStore      = errors.New("room store dependency required")
	errMissingSessionManager = errors.New("session manager dependency required")
)

// RoomStore is the encrypted room store consumed by the HTTP handlers.
type RoomStore interface {
	CreateRoom(ctx context.Context, name, passphrase string) error
	GetRoomCipher(ctx context.Context, name string) (rooms.Cipher, error)
	GetRoomMessages(ctx context.Context, name, passphrase string) (rooms.Snapshot, error)
	AppendMessage(ctx context.Context, name, passphrase string, message rooms.Message) (rooms.Snapshot, error)
	ReplaceMessages(ctx context.Context, name, passphrase string, messages []rooms.Message, expectedVersion string) (rooms.Snapshot, error)
	Send(ctx context.Context, name, passphrase string, submission rooms.Submission) (rooms.Snapshot, error)
	DeleteMessage(ctx context.Context, name, passphrase string, index int) (rooms.Snapshot, error)
	PinMessage(ctx context.Context, name, passphrase string, index int) (rooms.Snapshot, error)
	Vote(ctx context.Context, name, passphrase string, index, option int) (rooms.Snapshot, error)
}

// SessionManager issues and validates the display-name session cookie.
type SessionManager interface {
	CookieName() string
	Issue(displayName string) (string, session.Session, error)
	ValidateRequest(r *http.Request) (session.Session, error)
}

type Dependencies struct {
	Rooms          RoomStore
	Sessions       SessionManager
	AllowedOrigins []string
	MaxBodyBytes   int64
	SecureCookies  bool
	Logger         *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Rooms == nil {
		return nil, errMissingRoomStore
	}
	if deps.Sessions == nil {
		return nil, errMissingSessionManager
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxBodyBytes := deps.MaxBodyBytes
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}

	handler := &httpHandler{
		rooms:         deps.Rooms,
		sessions:      deps.Sessions,
		secureCookies: deps.SecureCookies,
		logger:        logger,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))
	router.Use(bodyLimitMiddleware(maxBodyBytes))
	router.Use(handler.attachSession)

	router.GET("/healthz", handler.handleHealth)
	router.POST("/", handler.handleLegacyAction)

	api := router.Group("/api")
	api.GET("/session", handler.handleGetSession)
	api.POST("/session", handler.handleCreateSession)
	api.DELETE("/session", handler.handleDeleteSession)

	api.POST("/rooms", handler.handleCreateRoom)
	api.GET("/rooms/:name", handler.handleGetRoomCipher)
	api.POST("/rooms/:name/read", handler.handleReadRoom)
	api.POST("/rooms/:name/messages", handler.handleAppendMessage)
	api.PUT("/rooms/:name/messages", handler.handleReplaceMessages)
	api.DELETE("/rooms/:name/messages/:index", handler.handleDeleteMessage)
	api.POST("/rooms/:name/messages/:index/pin", handler.handlePinMessage)
	api.POST("/rooms/:name/messages/:index/vote", handler.handleVote)

	return router, nil
}

type httpHandler struct {
	rooms         RoomStore
	sessions      SessionManager
	secureCookies bool
	logger        *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
