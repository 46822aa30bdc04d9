package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"usercenter/backend/internal/domain"
)

// TopicUserCreated 用户创建事件主题
const TopicUserCreated = "user.created"

// Publisher 事件发布
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Message 消费到的事件
type Message struct {
	Topic   string
	Payload []byte
}

// Handler 处理单条事件，返回错误时消费者记录日志并继续
type Handler func(ctx context.Context, msg Message) error

// Consumer 事件消费
type Consumer interface {
	// Consume 阻塞消费直到 ctx 结束
	Consume(ctx context.Context, handler Handler) error
	Close() error
}

// UserCreated 用户创建事件
type UserCreated struct {
	EventID   string    `json:"event_id"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// NewUserCreated 根据用户构造事件
func NewUserCreated(user *domain.User) UserCreated {
	return UserCreated{
		EventID:   uuid.NewString(),
		UserID:    user.ID,
		Username:  user.Username,
		Email:     user.Email,
		CreatedAt: user.CreatedAt.UTC(),
	}
}

// Encode 序列化事件
func (e UserCreated) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeUserCreated 反序列化事件
func DecodeUserCreated(payload []byte) (UserCreated, error) {
	var event UserCreated
	err := json.Unmarshal(payload, &event)
	return event, err
}
