package domain

import "encoding/json"

// Operation definition stream event operation
type Operation string

const (
	// OpInsert resource inserted
	OpInsert Operation = "insert"
	// OpUpdate resource updated
	OpUpdate Operation = "update"
	// OpDelete resource deleted
	OpDelete Operation = "delete"
)

// Resource definition stream resource name
type Resource string

const (
	// ResChannelMessages channel message feed
	ResChannelMessages Resource = "channel_messages"
	// ResDirectMessages direct message feed
	ResDirectMessages Resource = "direct_messages"
	// ResReactions reaction feed
	ResReactions Resource = "reactions"
	// ResPresence profile / ephemeral presence feed
	ResPresence Resource = "presence"
	// ResTyping conversation-scoped typing feed
	ResTyping Resource = "typing"
)

// StreamEvent 後端 change feed 的事件封包。
// Payload 依 Resource 再解一次，跨 stream 之間沒有順序保證。
type StreamEvent struct {
	Op       Operation       `json:"op"`
	Resource Resource        `json:"resource"`
	Payload  json.RawMessage `json:"payload"`
}

// NewStreamEvent marshal payload into an event envelope
func NewStreamEvent(op Operation, res Resource, payload interface{}) (StreamEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return StreamEvent{}, err
	}
	return StreamEvent{Op: op, Resource: res, Payload: data}, nil
}

// PresencePayload ephemeral membership / heartbeat payload on the presence feed
type PresencePayload struct {
	UserID     string `json:"user_id"`
	Connected  bool   `json:"connected"`
	LastSeenAt int64  `json:"last_seen_at,omitempty"`
}

// Action websocket request action
type Action string

const (
	// OpenConversation websocket action open_conversation
	OpenConversation Action = "open_conversation"
	// SendMessage websocket action send_message
	SendMessage Action = "send_message"
	// EditMessage websocket action edit_message
	EditMessage Action = "edit_message"
	// Typing websocket action typing
	Typing Action = "typing"
	// ToggleReaction websocket action toggle_reaction
	ToggleReaction Action = "toggle_reaction"
	// MarkRead websocket action mark_read
	MarkRead Action = "mark_read"
	// FilterMessages websocket action filter_messages
	FilterMessages Action = "filter_messages"

	// NotifyMessage push action notify_message
	NotifyMessage Action = "notify_message"
	// NotifyMessageFailed push action notify_message_failed
	NotifyMessageFailed Action = "notify_message_failed"
	// NotifyTyping push action notify_typing
	NotifyTyping Action = "notify_typing"
	// NotifyPresence push action notify_presence
	NotifyPresence Action = "notify_presence"
	// NotifyUnread push action notify_unread
	NotifyUnread Action = "notify_unread"
	// NotifyReaction push action notify_reaction
	NotifyReaction Action = "notify_reaction"
	// NotifyConnection push action notify_connection
	NotifyConnection Action = "notify_connection"
)

// WSRequest websocket Request
type WSRequest struct {
	Action    string `json:"action"`
	ChannelID string `json:"channel_id,omitempty"`
	PeerID    string `json:"peer_id,omitempty"`
	Content   string `json:"content,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	ReplyToID string `json:"reply_to_id,omitempty"`
	Emoji     string `json:"emoji,omitempty"`
	Typing    bool   `json:"typing,omitempty"`
	Keyword   string `json:"keyword,omitempty"`
}

// WSResponse websocket Response
type WSResponse struct {
	Action  string                 `json:"action"`
	Success bool                   `json:"success"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	Error   string                 `json:"error,omitempty"`
}
