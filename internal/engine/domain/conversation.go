package domain

import "strings"

// ConversationKind definition conversation kind
type ConversationKind string

const (
	// KindChannel group channel
	KindChannel ConversationKind = "channel"
	// KindDirect 1對1 direct message
	KindDirect ConversationKind = "direct"
)

// ConversationRef identifies a channel or a direct pair.
// Direct pair 的兩個 user id 一律排序後儲存，確保 (a,b) 與 (b,a) 是同一個 ref。
type ConversationRef struct {
	Kind      ConversationKind `bson:"kind" json:"kind"`
	ChannelID string           `bson:"channel_id,omitempty" json:"channel_id,omitempty"`
	UserA     string           `bson:"user_a,omitempty" json:"user_a,omitempty"`
	UserB     string           `bson:"user_b,omitempty" json:"user_b,omitempty"`
}

// NewChannelRef create channel ref
func NewChannelRef(channelID string) ConversationRef {
	return ConversationRef{Kind: KindChannel, ChannelID: channelID}
}

// NewDirectRef create direct ref, participant order does not matter
func NewDirectRef(u1, u2 string) ConversationRef {
	if u1 > u2 {
		u1, u2 = u2, u1
	}
	return ConversationRef{Kind: KindDirect, UserA: u1, UserB: u2}
}

// Key canonical map/subscription key
func (r ConversationRef) Key() string {
	if r.Kind == KindChannel {
		return "channel:" + r.ChannelID
	}
	return "direct:" + r.UserA + ":" + r.UserB
}

// IsZero ref not set
func (r ConversationRef) IsZero() bool {
	return r.Kind == ""
}

// Includes direct pair contains userID
func (r ConversationRef) Includes(userID string) bool {
	if r.Kind != KindDirect {
		return false
	}
	return r.UserA == userID || r.UserB == userID
}

// Peer the other participant of a direct pair
func (r ConversationRef) Peer(selfID string) string {
	if r.UserA == selfID {
		return r.UserB
	}
	return r.UserA
}

// ParseConversationKey rebuild ref from Key()
func ParseConversationKey(key string) ConversationRef {
	parts := strings.SplitN(key, ":", 3)
	switch {
	case len(parts) == 2 && parts[0] == "channel":
		return NewChannelRef(parts[1])
	case len(parts) == 3 && parts[0] == "direct":
		return NewDirectRef(parts[1], parts[2])
	}
	return ConversationRef{}
}

// Conversation definition a channel or direct pair visible to the user
type Conversation struct {
	Ref     ConversationRef `bson:"ref" json:"ref"`
	Name    string          `bson:"name,omitempty" json:"name,omitempty"`
	Members []string        `bson:"members,omitempty" json:"members,omitempty"`
}
