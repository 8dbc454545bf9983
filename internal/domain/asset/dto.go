package asset

// Requester is the authenticated caller. UserID is empty for anonymous reads.
type Requester struct {
	UserID   string
	TenantID string
}

type InlineIngestRequest struct {
	ConversationID string   `json:"conversation_id" validate:"required"`
	MessageID      string   `json:"message_id" validate:"required"`
	DataURL        string   `json:"data_url" validate:"required"`
	SourceType     string   `json:"source_type"`
	Kind           string   `json:"kind" validate:"omitempty,oneof=image audio video file"`
	Index          *float64 `json:"index"`
	AssetID        string   `json:"asset_id" validate:"omitempty,uuid"`
}

// RawIngestRequest is assembled by the handler from the body, Content-Type and query string.
type RawIngestRequest struct {
	Mime           string
	Data           []byte
	ConversationID string `validate:"required_with=MessageID"`
	MessageID      string `validate:"required_with=ConversationID"`
	SourceType     string
	Kind           string `validate:"omitempty,oneof=image audio video file"`
	Index          *float64
}

type LinkRequest struct {
	URL        string `json:"url" validate:"required,url"`
	CDNURL     string `json:"cdn_url" validate:"omitempty,url"`
	Mime       string `json:"mime"`
	Kind       string `json:"kind" validate:"omitempty,oneof=image audio video file"`
	SourceType string `json:"source_type"`
	IsPrivate  *bool  `json:"is_private"`
}

type ExportRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=500,dive,required"`
}

type FavoriteRequest struct {
	Favorite *bool `json:"favorite" validate:"required"`
}

type PinRequest struct {
	Pinned *bool `json:"pinned" validate:"required"`
}

type IngestResult struct {
	AssetID    string `json:"assetId"`
	URL        string `json:"url"`
	Mime       string `json:"mime"`
	Bytes      int64  `json:"bytes"`
	SHA256     string `json:"sha256"`
	StorageKey string `json:"storageKey,omitempty"`
}
