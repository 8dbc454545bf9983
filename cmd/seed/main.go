package main

import (
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"mediastore/internal/config"
	"mediastore/internal/database"
	"mediastore/internal/domain/chat"
	jwtsvc "mediastore/internal/pkg/jwt"
	"mediastore/internal/pkg/logger"
)

func main() {
	if err := newSeedCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}

// Seeds a conversation with a few messages for local testing and prints a token for its owner.
func newSeedCmd() *cobra.Command {
	var (
		userID   string
		tenantID string
		messages int
	)

	cmd := &cobra.Command{
		Use:          "seed",
		Short:        "Create a conversation with messages and print an access token for its owner",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if userID == "" {
				userID = uuid.NewString()
			}
			if tenantID == "" {
				tenantID = uuid.NewString()
			}

			db, err := database.Connect(cfg.DatabaseURL, logger.NewNop())
			if err != nil {
				return fmt.Errorf("DB connection failed: %w", err)
			}
			if err := database.Migrate(db); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			ctx := cmd.Context()
			repo := chat.NewRepository(db)
			out := cmd.OutOrStdout()

			conv := &chat.Conversation{TenantID: tenantID, UserID: userID, Title: "Seeded conversation"}
			if err := repo.CreateConversation(ctx, conv); err != nil {
				return fmt.Errorf("create conversation: %w", err)
			}

			fmt.Fprintf(out, "tenant_id=%s\nuser_id=%s\nconversation_id=%s\n", tenantID, userID, conv.ID)
			for i := 0; i < messages; i++ {
				msg := &chat.Message{ConversationID: conv.ID, Role: chat.RoleUser, Content: fmt.Sprintf("message %d", i)}
				if err := repo.CreateMessage(ctx, msg); err != nil {
					return fmt.Errorf("create message: %w", err)
				}
				fmt.Fprintf(out, "message_id=%s\n", msg.ID)
			}

			token, err := jwtsvc.New(cfg.JWTSecret, cfg.JWTAccessTTL).GenerateToken(userID, tenantID)
			if err != nil {
				return fmt.Errorf("token: %w", err)
			}
			fmt.Fprintf(out, "token=%s\n", token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "owner user id (random uuid when empty)")
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id (random uuid when empty)")
	cmd.Flags().IntVar(&messages, "messages", 3, "number of messages to create")
	return cmd
}
