package realtime

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"parkinglot/backend/services/parking-service/internal/auth"
)

// TokenValidator resolves a bearer token to its claims.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// Server upgrades dashboard HTTP requests to websockets and joins them to the owner's room.
type Server struct {
	hub          *Hub
	tokens       TokenValidator
	logger       *zap.Logger
	writeTimeout time.Duration
	upgrader     websocket.Upgrader
	ctx          context.Context
}

// NewServer builds ws server. Clients stop when ctx is cancelled.
// An empty origin list or "*" accepts every origin.
func NewServer(ctx context.Context, hub *Hub, tokens TokenValidator, allowedOrigins []string, writeTimeout time.Duration, logger *zap.Logger) *Server {
	return &Server{
		hub:          hub,
		tokens:       tokens,
		logger:       logger,
		writeTimeout: writeTimeout,
		ctx:          ctx,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// HandleWS is HTTP handler for the /ws endpoint.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = auth.BearerToken(r.Header.Get("Authorization"))
	}
	if token == "" {
		http.Error(w, "token is required", http.StatusUnauthorized)
		return
	}
	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(claims.UserID, conn, s.writeTimeout, s.logger, func(c *Client) { s.hub.Unregister(c) })
	s.hub.Register(client)
	s.logger.Info("dashboard connected", zap.String("owner_id", claims.UserID))

	go client.Start(s.ctx)
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if o != "" {
			set[strings.ToLower(o)] = struct{}{}
		}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.ToLower(strings.TrimRight(origin, "/"))]
		return ok
	}
}
