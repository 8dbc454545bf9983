package chat

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository handles DB operations for conversations and their messages
type Repository interface {
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	CreateMessage(ctx context.Context, msg *Message) error
	GetMessage(ctx context.Context, id string) (*Message, error)

	// ConversationOwnerOfMessage returns the user owning the conversation the message belongs to.
	ConversationOwnerOfMessage(ctx context.Context, messageID string) (string, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateConversation(ctx context.Context, conv *Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(conv).Error
}

func (r *repository) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var conv Conversation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// CreateMessage defaults an empty role to user and rejects unknown roles.
func (r *repository) CreateMessage(ctx context.Context, msg *Message) error {
	if msg.Role == "" {
		msg.Role = RoleUser
	}
	if !msg.Role.Valid() {
		return ErrInvalidRole
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *repository) GetMessage(ctx context.Context, id string) (*Message, error) {
	var msg Message
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *repository) ConversationOwnerOfMessage(ctx context.Context, messageID string) (string, error) {
	var owner struct{ UserID string }
	res := r.db.WithContext(ctx).
		Table("chat_messages").
		Select("chat_conversations.user_id AS user_id").
		Joins("JOIN chat_conversations ON chat_conversations.id = chat_messages.conversation_id").
		Where("chat_messages.id = ?", messageID).
		Limit(1).
		Scan(&owner)
	if res.Error != nil {
		return "", res.Error
	}
	if res.RowsAffected == 0 || owner.UserID == "" {
		return "", ErrMessageNotFound
	}
	return owner.UserID, nil
}
