package asset

import (
	"time"

	"gorm.io/datatypes"
)

type SourceType string

const (
	SourceAIGenerated  SourceType = "ai_generated"
	SourceAttachment   SourceType = "attachment"
	SourcePostUpload   SourceType = "post_upload"
	SourceExternalLink SourceType = "external_link"
	SourceProfileImage SourceType = "profile_image"
)

// ParseSourceType falls back to attachment for anything unrecognised.
func ParseSourceType(s string) SourceType {
	switch st := SourceType(s); st {
	case SourceAIGenerated, SourceAttachment, SourcePostUpload, SourceExternalLink, SourceProfileImage:
		return st
	default:
		return SourceAttachment
	}
}

// Ephemeral source types carry an expiry and are reclaimed by the reaper.
func (s SourceType) Ephemeral() bool { return s == SourceAttachment }

type Kind string

const (
	KindImage Kind = "image"
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
	KindFile  Kind = "file"
)

func (k Kind) Valid() bool {
	switch k {
	case KindImage, KindAudio, KindVideo, KindFile:
		return true
	}
	return false
}

type Status string

const (
	StatusStored  Status = "stored"
	StatusDeleted Status = "deleted"
)

type Provider string

const (
	ProviderLocalFS Provider = "local_fs"
	ProviderHTTP    Provider = "http"
)

const (
	ReferenceMessage = "message"
	ReferenceUser    = "user"
)

// FileAsset is one catalog row per stored object. Ownership of message-referenced rows
// is derived through the conversation and is not stored on the row.
type FileAsset struct {
	ID              string         `gorm:"column:id;primaryKey" json:"id"`
	TenantID        string         `gorm:"column:tenant_id;index" json:"tenant_id"`
	UserID          *string        `gorm:"column:user_id;index" json:"user_id,omitempty"`
	SourceType      SourceType     `gorm:"column:source_type;index;not null" json:"source_type"`
	ReferenceType   string         `gorm:"column:reference_type;index:idx_file_assets_reference" json:"reference_type"`
	ReferenceID     string         `gorm:"column:reference_id;index:idx_file_assets_reference" json:"reference_id"`
	Kind            Kind           `gorm:"column:kind;not null" json:"kind"`
	Mime            string         `gorm:"column:mime" json:"mime"`
	Bytes           int64          `gorm:"column:bytes" json:"bytes"`
	SHA256          string         `gorm:"column:sha256" json:"sha256"`
	Status          Status         `gorm:"column:status;not null" json:"status"`
	StorageProvider Provider       `gorm:"column:storage_provider;not null" json:"storage_provider"`
	StorageKey      string         `gorm:"column:storage_key" json:"-"`
	StorageURL      string         `gorm:"column:storage_url" json:"-"`
	CDNURL          string         `gorm:"column:cdn_url" json:"cdn_url,omitempty"`
	IsPrivate       bool           `gorm:"column:is_private;not null" json:"is_private"`
	IsFavorite      bool           `gorm:"column:is_favorite;not null" json:"is_favorite"`
	IsPinned        bool           `gorm:"column:is_pinned;not null" json:"is_pinned"`
	ExpiresAt       *time.Time     `gorm:"column:expires_at;index" json:"expires_at,omitempty"`
	Metadata        datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt       time.Time      `gorm:"column:created_at;index" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"column:updated_at" json:"updated_at"`
}

func (FileAsset) TableName() string { return "file_assets" }

// ingestMetadata is the provenance snapshot stored in FileAsset.Metadata.
type ingestMetadata struct {
	Source         string `json:"source"`
	ConversationID string `json:"conversation_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
	Index          int    `json:"index"`
	TTLDays        int    `json:"ttl_days"`
	OriginalURL    string `json:"original_url,omitempty"`
}
