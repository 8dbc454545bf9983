package chat

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

func setupChatDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:chat_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(gormsqlite.New(gormsqlite.Config{DriverName: "sqlite", DSN: dsn}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&Conversation{}, &Message{}))
	return db
}

func TestConversationOwnerOfMessage(t *testing.T) {
	repo := NewRepository(setupChatDB(t))
	ctx := context.Background()

	conv := &Conversation{TenantID: "t1", UserID: "alice"}
	require.NoError(t, repo.CreateConversation(ctx, conv))
	msg := &Message{ConversationID: conv.ID, Role: RoleUser, Content: "hi"}
	require.NoError(t, repo.CreateMessage(ctx, msg))

	owner, err := repo.ConversationOwnerOfMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", owner)

	_, err = repo.ConversationOwnerOfMessage(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestGetConversationNotFound(t *testing.T) {
	repo := NewRepository(setupChatDB(t))

	_, err := repo.GetConversation(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrConversationNotFound)

	_, err = repo.GetMessage(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestCreateMessageRoles(t *testing.T) {
	repo := NewRepository(setupChatDB(t))
	ctx := context.Background()

	conv := &Conversation{TenantID: "t1", UserID: "alice"}
	require.NoError(t, repo.CreateConversation(ctx, conv))

	for _, role := range []Role{RoleUser, RoleAssistant, RoleSystem} {
		require.NoError(t, repo.CreateMessage(ctx, &Message{ConversationID: conv.ID, Role: role}))
	}

	defaulted := &Message{ConversationID: conv.ID}
	require.NoError(t, repo.CreateMessage(ctx, defaulted))
	got, err := repo.GetMessage(ctx, defaulted.ID)
	require.NoError(t, err)
	assert.Equal(t, RoleUser, got.Role)

	err = repo.CreateMessage(ctx, &Message{ConversationID: conv.ID, Role: "robot"})
	assert.ErrorIs(t, err, ErrInvalidRole)
}
