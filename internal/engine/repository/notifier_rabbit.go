package repository

import (
	"encoding/json"

	"chat_sync_service/internal/engine/domain"
	"chat_sync_service/pkg/logger"

	"github.com/streadway/amqp"
)

// NotifyExchange 通知事件的 exchange
const NotifyExchange = "chat.notifications"

const (
	routingKeyNotify = "notify"
	routingKeySound  = "sound"
)

// Notifier fire-and-forget notification/sound collaborator.
// 發送失敗只記 log，不影響引擎流程。
type Notifier interface {
	Notify(ref domain.ConversationRef, preview string)
	PlayIncomingSound()
}

// NotifyPayload notification message body
type NotifyPayload struct {
	ConversationKey string `json:"conversation_key"`
	Preview         string `json:"preview"`
}

type rabbitNotifier struct {
	channel *amqp.Channel
}

// NewRabbitNotifier create a Notifier, declares the exchange
func NewRabbitNotifier(ch *amqp.Channel) (Notifier, error) {
	if err := ch.ExchangeDeclare(NotifyExchange, "topic", true, false, false, false, nil); err != nil {
		return nil, err
	}
	return &rabbitNotifier{channel: ch}, nil
}

func (n *rabbitNotifier) publish(key string, body interface{}) {
	data, err := json.Marshal(body)
	if err != nil {
		logger.Log.Errorf("notify marshal:", err)
		return
	}
	err = n.channel.Publish(NotifyExchange, key, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        data,
	})
	if err != nil {
		logger.Log.Errorf("notify publish:", err)
	}
}

func (n *rabbitNotifier) Notify(ref domain.ConversationRef, preview string) {
	n.publish(routingKeyNotify, NotifyPayload{ConversationKey: ref.Key(), Preview: preview})
}

func (n *rabbitNotifier) PlayIncomingSound() {
	n.publish(routingKeySound, struct{}{})
}
