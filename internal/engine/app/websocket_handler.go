package app

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"chat_sync_service/internal/engine/domain"
	"chat_sync_service/pkg/logger"
	"chat_sync_service/pkg/middlewares"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

// EngineWebsocketHandler bridges one websocket connection to one engine session
type EngineWebsocketHandler struct {
	cfg  Config
	deps Deps
}

// NewEngineWebsocketHandler create EngineWebsocketHandler
func NewEngineWebsocketHandler(cfg Config, deps Deps) *EngineWebsocketHandler {
	return &EngineWebsocketHandler{cfg: cfg, deps: deps}
}

// HandleConnection websocket 連線進入點。一條連線一個 engine session，
// 斷線時 engine.Close 收掉所有訂閱跟 timer。
func (h *EngineWebsocketHandler) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	userID, _ := conn.Locals(middlewares.TokenUserID).(string)
	userName, _ := conn.Locals(middlewares.TokenUserName).(string)
	if userID == "" {
		logger.Log.Warn("websocket without identity, dropping")
		conn.Close()
		return
	}
	logger.Log.Info("websocket session open", zap.String("user_id", userID))

	// engine push 跟 ping 會從不同 goroutine 寫同一條 conn
	var writeMu sync.Mutex
	writeJSON := func(v interface{}) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(v); err != nil {
			logger.Log.Errorf("websocket write:", err)
		}
	}

	engine := NewEngine(h.cfg, h.deps, userID, userName, func(resp domain.WSResponse) {
		writeJSON(resp)
	})
	if err := engine.Start(ctx); err != nil {
		logger.Log.Errorf("engine start:", err)
		writeJSON(domain.WSResponse{
			Action: string(domain.NotifyConnection),
			Error:  "engine unavailable",
		})
		conn.Close()
		return
	}

	ticker := time.NewTicker(10 * time.Minute)
	defer func() {
		ticker.Stop()
		engine.Close()
		conn.Close()
		logger.Log.Info("websocket session closed", zap.String("user_id", userID))
	}()

	conn.SetPongHandler(func(appData string) error { return nil })

	go func() {
		for range ticker.C {
			writeMu.Lock()
			err := conn.WriteMessage(websocket.PingMessage, []byte("ping"))
			writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}()

	for {
		mt, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Log.Info("websocket closed", zap.String("user_id", userID))
			} else {
				logger.Log.Errorf("websocket read:", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		h.dispatch(engine, userID, raw, writeJSON)
	}
}

func (h *EngineWebsocketHandler) dispatch(engine *Engine, userID string, raw []byte, writeJSON func(v interface{})) {
	var req domain.WSRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeJSON(domain.WSResponse{Action: req.Action, Error: "bad request"})
		return
	}

	switch domain.Action(req.Action) {
	case domain.OpenConversation:
		ref, ok := conversationFromRequest(userID, req)
		if !ok {
			writeJSON(domain.WSResponse{Action: req.Action, Error: "missing conversation"})
			return
		}
		engine.OpenConversation(ref)

	case domain.SendMessage:
		engine.Send(req.Content, req.ReplyToID)

	case domain.EditMessage:
		engine.Edit(req.MessageID, req.Content)

	case domain.Typing:
		if req.Typing {
			engine.Keystroke()
		}

	case domain.ToggleReaction:
		engine.ToggleReaction(req.MessageID, req.Emoji)

	case domain.MarkRead:
		engine.MarkRead()

	case domain.FilterMessages:
		writeJSON(domain.WSResponse{
			Action:  req.Action,
			Success: true,
			Payload: map[string]interface{}{"messages": engine.FilterMessages(req.Keyword)},
		})

	default:
		writeJSON(domain.WSResponse{Action: req.Action, Error: "unknown action"})
	}
}

func conversationFromRequest(userID string, req domain.WSRequest) (domain.ConversationRef, bool) {
	if req.ChannelID != "" {
		return domain.NewChannelRef(req.ChannelID), true
	}
	if req.PeerID != "" {
		return domain.NewDirectRef(userID, req.PeerID), true
	}
	return domain.ConversationRef{}, false
}
