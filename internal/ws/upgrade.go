package ws

import (
	"context"
	"net/http"
	"time"

	"dukasell/config"
	"dukasell/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// BalanceReader returns a user's current credit balance.
type BalanceReader interface {
	Balance(ctx context.Context, userID uint) (int64, error)
}

// CreditsMessage is what the credits channel sends.
type CreditsMessage struct {
	Type    string `json:"type"`
	Credits int64  `json:"credits"`
}

// UpgradeCreditsWS serves /ws/credits?token=. The server sends the balance on
// connect and again whenever it changes; client messages are ignored.
func UpgradeCreditsWS(cfg *config.JWTConfig, hub *Hub, balances BalanceReader, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token required"})
			return
		}
		claims, err := auth.ParseAccessToken(cfg, token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Debug("websocket upgrade failed", zap.Error(err))
			return
		}
		defer conn.Close()

		client := NewClient(claims.UserID)
		hub.Register(client)
		defer client.Close()

		if credits, err := balances.Balance(c.Request.Context(), claims.UserID); err == nil {
			if err := conn.WriteJSON(CreditsMessage{Type: "credits", Credits: credits}); err != nil {
				return
			}
		}
		go writePump(client, conn)
		readPump(conn)
	}
}

// writePump copies messages from client.Send to the connection.
func writePump(c *Client, conn *websocket.Conn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-c.Send:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func readPump(conn *websocket.Conn) {
	conn.SetReadLimit(512)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
