package asset

import (
	"context"
	"errors"
	"strings"

	"mediastore/internal/domain/chat"
)

// OwnerResolver derives the owning user of assets for one reference type.
type OwnerResolver interface {
	// OwnerOf returns "" when the owner cannot be determined.
	OwnerOf(ctx context.Context, a *FileAsset) (string, error)
	// OwnedBy returns a SQL predicate over file_assets selecting rows owned by userID.
	OwnedBy(userID string) (string, []any)
}

// ChatLookup is the slice of the chat repository needed to resolve message ownership.
type ChatLookup interface {
	GetMessage(ctx context.Context, id string) (*chat.Message, error)
	ConversationOwnerOfMessage(ctx context.Context, messageID string) (string, error)
}

// directOwner reads the owner straight from the row.
type directOwner struct{}

func (directOwner) OwnerOf(_ context.Context, a *FileAsset) (string, error) {
	if a.UserID == nil {
		return "", nil
	}
	return *a.UserID, nil
}

func (directOwner) OwnedBy(userID string) (string, []any) {
	return "file_assets.user_id = ?", []any{userID}
}

// messageOwner resolves through message -> conversation -> user.
type messageOwner struct {
	chats ChatLookup
}

func (m messageOwner) OwnerOf(ctx context.Context, a *FileAsset) (string, error) {
	owner, err := m.chats.ConversationOwnerOfMessage(ctx, a.ReferenceID)
	if errors.Is(err, chat.ErrMessageNotFound) {
		return "", nil
	}
	return owner, err
}

func (messageOwner) OwnedBy(userID string) (string, []any) {
	return `file_assets.reference_id IN (
		SELECT chat_messages.id FROM chat_messages
		JOIN chat_conversations ON chat_conversations.id = chat_messages.conversation_id
		WHERE chat_conversations.user_id = ?)`, []any{userID}
}

// Owners dispatches on reference_type. Rows with an unregistered reference type have no owner.
type Owners struct {
	chats  ChatLookup
	byType map[string]OwnerResolver
	order  []string
}

func NewOwners(chats ChatLookup) *Owners {
	o := &Owners{chats: chats, byType: map[string]OwnerResolver{}}
	o.Register(ReferenceUser, directOwner{})
	o.Register(ReferenceMessage, messageOwner{chats: chats})
	return o
}

func (o *Owners) Register(referenceType string, r OwnerResolver) {
	if _, exists := o.byType[referenceType]; !exists {
		o.order = append(o.order, referenceType)
	}
	o.byType[referenceType] = r
}

func (o *Owners) OwnerOf(ctx context.Context, a *FileAsset) (string, error) {
	r, ok := o.byType[a.ReferenceType]
	if !ok {
		return "", nil
	}
	return r.OwnerOf(ctx, a)
}

// ConversationOf returns the conversation a message belongs to, or "" when the message does not exist.
func (o *Owners) ConversationOf(ctx context.Context, messageID string) (string, error) {
	msg, err := o.chats.GetMessage(ctx, messageID)
	if errors.Is(err, chat.ErrMessageNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return msg.ConversationID, nil
}

// OwnedBy ORs together each variant's predicate, gated on its reference type.
func (o *Owners) OwnedBy(userID string) (string, []any) {
	clauses := make([]string, 0, len(o.order))
	var args []any
	for _, refType := range o.order {
		clause, clauseArgs := o.byType[refType].OwnedBy(userID)
		clauses = append(clauses, "(file_assets.reference_type = ? AND "+clause+")")
		args = append(args, refType)
		args = append(args, clauseArgs...)
	}
	if len(clauses) == 0 {
		return "1 = 0", nil
	}
	return "(" + strings.Join(clauses, " OR ") + ")", args
}
