package domain

import "strings"

// SendState definition optimistic send state
type SendState string

const (
	// SendConfirmed server assigned id (default state)
	SendConfirmed SendState = ""
	// SendPending waiting server echo
	SendPending SendState = "pending"
	// SendFailed write rejected, entry rolled back
	SendFailed SendState = "failed"
)

// TempIDPrefix 本地暫時 id 前綴，與 server 產生的 uuid 區分
const TempIDPrefix = "temp-"

// IsTempID check id is locally assigned
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// Attachment opaque descriptor returned by the upload collaborator
type Attachment struct {
	URL      string `bson:"url" json:"url"`
	Name     string `bson:"name" json:"name"`
	MimeType string `bson:"mime_type" json:"mime_type"`
	Size     int64  `bson:"size" json:"size"`
}

// Message 一則聊天訊息。timestamp 一律用 unix milli。
type Message struct {
	ID           string          `bson:"_id" json:"id"`
	Conversation ConversationRef `bson:"conversation" json:"conversation"`
	SenderID     string          `bson:"sender_id" json:"sender_id"`
	Content      string          `bson:"content" json:"content"`
	CreatedAt    int64           `bson:"created_at" json:"created_at"`
	EditedAt     int64           `bson:"edited_at,omitempty" json:"edited_at,omitempty"`
	ReplyToID    string          `bson:"reply_to_id,omitempty" json:"reply_to_id,omitempty"`
	Attachment   *Attachment     `bson:"attachment,omitempty" json:"attachment,omitempty"`

	// SendState 只存在本地 store，不落 DB
	SendState SendState `bson:"-" json:"send_state,omitempty"`
}

// IsPending message staged locally, not yet confirmed
func (m Message) IsPending() bool {
	return m.SendState == SendPending
}
