package asset

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"mediastore/internal/domain/chat"
	"mediastore/internal/pkg/logger"
)

// 1x1 transparent PNG.
const pixelPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

const pixelDataURL = "data:image/png;base64," + pixelPNG

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	db      *gorm.DB
	root    *Root
	repo    Repository
	chats   chat.Repository
	owners  *Owners
	service *Service
	clock   *fakeClock
	tenant  string
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:asset_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(gormsqlite.New(gormsqlite.Config{DriverName: "sqlite", DSN: dsn}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&FileAsset{}, &chat.Conversation{}, &chat.Message{}))
	return db
}

func newTestEnv(t *testing.T, ttlDays int, signer URLSigner) *testEnv {
	t.Helper()
	db := setupTestDB(t)
	root, err := NewRoot(t.TempDir())
	require.NoError(t, err)

	clock := newFakeClock()
	repo := NewRepository(db)
	chats := chat.NewRepository(db)
	owners := NewOwners(chats)
	svc := NewService(repo, root, owners, Options{
		TTLDays:       ttlDays,
		PublicBaseURL: "/api/v1",
		Signer:        signer,
		Now:           clock.Now,
	}, logger.NewNop())

	return &testEnv{
		db:      db,
		root:    root,
		repo:    repo,
		chats:   chats,
		owners:  owners,
		service: svc,
		clock:   clock,
		tenant:  uuid.NewString(),
	}
}

// seedMessage creates a conversation owned by userID with one message.
func (e *testEnv) seedMessage(t *testing.T, userID string) (conversationID, messageID string) {
	t.Helper()
	ctx := context.Background()
	conv := &chat.Conversation{TenantID: e.tenant, UserID: userID}
	require.NoError(t, e.chats.CreateConversation(ctx, conv))
	msg := &chat.Message{ConversationID: conv.ID, Role: chat.RoleUser}
	require.NoError(t, e.chats.CreateMessage(ctx, msg))
	return conv.ID, msg.ID
}

func (e *testEnv) ingest(t *testing.T, userID, source string, index float64) *IngestResult {
	t.Helper()
	convID, msgID := e.seedMessage(t, userID)
	res, err := e.service.IngestInline(context.Background(), Requester{UserID: userID, TenantID: e.tenant}, InlineIngestRequest{
		ConversationID: convID,
		MessageID:      msgID,
		DataURL:        pixelDataURL,
		SourceType:     source,
		Index:          &index,
	})
	require.NoError(t, err)
	return res
}

func (e *testEnv) as(userID string) Requester {
	return Requester{UserID: userID, TenantID: e.tenant}
}
