package domain

// Reaction one user's emoji on one message.
// 同一個 (message, user, emoji) tuple 不允許重複。
type Reaction struct {
	ID        string           `bson:"_id" json:"id"`
	MessageID string           `bson:"message_id" json:"message_id"`
	Kind      ConversationKind `bson:"kind" json:"kind"`
	UserID    string           `bson:"user_id" json:"user_id"`
	Emoji     string           `bson:"emoji" json:"emoji"`
}

// ReactionGroup per-emoji display grouping for one message
type ReactionGroup struct {
	Emoji   string `json:"emoji"`
	Count   int    `json:"count"`
	Reacted bool   `json:"reacted"`
}
