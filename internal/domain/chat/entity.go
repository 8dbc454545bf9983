package chat

import "time"

// Role marks who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Conversation belongs to exactly one user within a tenant.
type Conversation struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	TenantID  string    `gorm:"column:tenant_id;index" json:"tenant_id"`
	UserID    string    `gorm:"column:user_id;index;not null" json:"user_id"`
	Title     string    `gorm:"column:title" json:"title"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

func (Conversation) TableName() string { return "chat_conversations" }

type Message struct {
	ID             string    `gorm:"column:id;primaryKey" json:"id"`
	ConversationID string    `gorm:"column:conversation_id;index;not null" json:"conversation_id"`
	Role           Role      `gorm:"column:role" json:"role"`
	Content        string    `gorm:"column:content" json:"content"`
	CreatedAt      time.Time `gorm:"column:created_at" json:"created_at"`
}

func (Message) TableName() string { return "chat_messages" }
