package asset

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"mediastore/internal/config"
	"mediastore/internal/domain/chat"
	"mediastore/internal/pkg/logger"
	"mediastore/internal/pkg/validator"
)

const maxIndex = 1_000_000

// URLSigner rewrites a stored URL into one a client can follow, e.g. a presigned object URL.
type URLSigner interface {
	SignURL(ctx context.Context, raw string) (string, error)
}

type Options struct {
	TTLDays       int
	PublicBaseURL string
	Signer        URLSigner
	Now           func() time.Time
}

type Service struct {
	repo       Repository
	root       *Root
	owners     *Owners
	signer     URLSigner
	ttlDays    int
	publicBase string
	now        func() time.Time
	log        *logger.Logger
}

func NewService(repo Repository, root *Root, owners *Owners, opts Options, log *logger.Logger) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		repo:       repo,
		root:       root,
		owners:     owners,
		signer:     opts.Signer,
		ttlDays:    config.NormalizeTTLDays(opts.TTLDays),
		publicBase: strings.TrimRight(opts.PublicBaseURL, "/"),
		now:        opts.Now,
		log:        log.With("component", "asset.Service"),
	}
}

// IngestInline stores a data URL attached to a conversation message.
func (s *Service) IngestInline(ctx context.Context, req Requester, in InlineIngestRequest) (*IngestResult, error) {
	const op = "asset.IngestInline"

	if fields := validator.Validate(in); fields != nil {
		return nil, &Error{Kind: KindValidation, Op: op, Detail: "invalid request", Fields: fields}
	}
	index, err := parseIndex(op, in.Index)
	if err != nil {
		return nil, err
	}
	mime, data, err := ParseDataURL(in.DataURL)
	if err != nil {
		return nil, err
	}
	if err := s.checkMessage(ctx, op, req, in.ConversationID, in.MessageID); err != nil {
		return nil, err
	}

	return s.store(ctx, storeInput{
		ID:             in.AssetID,
		TenantID:       req.TenantID,
		ConversationID: in.ConversationID,
		MessageID:      in.MessageID,
		ReferenceType:  ReferenceMessage,
		ReferenceID:    in.MessageID,
		Index:          index,
		Source:         ParseSourceType(in.SourceType),
		Kind:           Kind(in.Kind),
		Mime:           mime,
		Data:           data,
	})
}

// IngestRaw stores an uploaded body. Without a conversation/message pair the asset is owned
// directly by the uploader.
func (s *Service) IngestRaw(ctx context.Context, req Requester, in RawIngestRequest) (*IngestResult, error) {
	const op = "asset.IngestRaw"

	if req.UserID == "" {
		return nil, validationErr(op, "uploader identity is required")
	}
	if fields := validator.Validate(in); fields != nil {
		return nil, &Error{Kind: KindValidation, Op: op, Detail: "invalid request", Fields: fields}
	}
	if len(in.Data) == 0 {
		return nil, validationErr(op, "request body is empty")
	}
	index, err := parseIndex(op, in.Index)
	if err != nil {
		return nil, err
	}

	input := storeInput{
		TenantID:       req.TenantID,
		ConversationID: in.ConversationID,
		MessageID:      in.MessageID,
		Index:          index,
		Source:         ParseSourceType(in.SourceType),
		Kind:           Kind(in.Kind),
		Mime:           in.Mime,
		Data:           in.Data,
	}
	if in.MessageID != "" {
		if err := s.checkMessage(ctx, op, req, in.ConversationID, in.MessageID); err != nil {
			return nil, err
		}
		input.ReferenceType, input.ReferenceID = ReferenceMessage, in.MessageID
	} else {
		uid := req.UserID
		input.UserID = &uid
		input.ReferenceType, input.ReferenceID = ReferenceUser, uid
	}
	return s.store(ctx, input)
}

// RegisterLink catalogs an externally hosted object. No bytes are stored.
func (s *Service) RegisterLink(ctx context.Context, req Requester, in LinkRequest) (*IngestResult, error) {
	const op = "asset.RegisterLink"

	if req.UserID == "" {
		return nil, validationErr(op, "owner identity is required")
	}
	if fields := validator.Validate(in); fields != nil {
		return nil, &Error{Kind: KindValidation, Op: op, Detail: "invalid request", Fields: fields}
	}
	source := SourceExternalLink
	if in.SourceType != "" {
		source = ParseSourceType(in.SourceType)
	}
	if source.Ephemeral() {
		return nil, validationErr(op, "source_type %q is not supported for links", source)
	}

	mime := NormalizeMime(in.Mime)
	if mime == "" {
		mime = defaultMime
	}
	kind := Kind(in.Kind)
	if kind == "" {
		kind = KindForMime(mime)
	}
	isPrivate := false
	if in.IsPrivate != nil {
		isPrivate = *in.IsPrivate
	}

	uid := req.UserID
	now := s.now().UTC()
	meta, _ := json.Marshal(ingestMetadata{Source: string(source), OriginalURL: in.URL})
	row := &FileAsset{
		ID:              uuid.NewString(),
		TenantID:        req.TenantID,
		UserID:          &uid,
		SourceType:      source,
		ReferenceType:   ReferenceUser,
		ReferenceID:     uid,
		Kind:            kind,
		Mime:            mime,
		Status:          StatusStored,
		StorageProvider: ProviderHTTP,
		StorageURL:      in.URL,
		CDNURL:          in.CDNURL,
		IsPrivate:       isPrivate,
		Metadata:        datatypes.JSON(meta),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Create(ctx, row); err != nil {
		return nil, internalErr(op, err)
	}
	return &IngestResult{AssetID: row.ID, URL: s.assetURL(row.ID), Mime: mime}, nil
}

// checkMessage admits a write against a message only for the owner of its conversation, and only
// when conversationID is the conversation the message actually belongs to. A message the requester
// cannot see is reported as not found.
func (s *Service) checkMessage(ctx context.Context, op string, req Requester, conversationID, messageID string) error {
	if req.UserID == "" {
		return notFoundErr(op, ErrAssetNotFound)
	}
	owner, err := s.owners.OwnerOf(ctx, &FileAsset{ReferenceType: ReferenceMessage, ReferenceID: messageID})
	if err != nil {
		return internalErr(op, err)
	}
	if owner == "" || owner != req.UserID {
		return notFoundErr(op, chat.ErrMessageNotFound)
	}
	convID, err := s.owners.ConversationOf(ctx, messageID)
	if err != nil {
		return internalErr(op, err)
	}
	if convID != conversationID {
		return validationErr(op, "message does not belong to conversation_id")
	}
	return nil
}

type storeInput struct {
	ID             string
	TenantID       string
	UserID         *string
	ConversationID string
	MessageID      string
	ReferenceType  string
	ReferenceID    string
	Index          int
	Source         SourceType
	Kind           Kind
	Mime           string
	Data           []byte
}

// store writes the bytes under their derived key and inserts the catalog row.
// An existing file with the same key is overwritten.
func (s *Service) store(ctx context.Context, in storeInput) (*IngestResult, error) {
	const op = "asset.store"

	id := in.ID
	if id == "" {
		id = uuid.NewString()
	} else if _, err := s.repo.GetByID(ctx, id); err == nil {
		return nil, &Error{Kind: KindConflict, Op: op, Detail: "asset id already exists"}
	} else if !errors.Is(err, ErrAssetNotFound) {
		return nil, internalErr(op, err)
	}

	sum := sha256.Sum256(in.Data)
	hash := hex.EncodeToString(sum[:])

	mime := NormalizeMime(in.Mime)
	if mime == "" {
		mime = defaultMime
	}
	kind := in.Kind
	if kind == "" {
		kind = KindForMime(mime)
	}

	key := StorageKey(in.TenantID, in.ConversationID, in.MessageID, in.Index, hash, ExtForMime(mime))
	abs, err := s.root.Resolve(key)
	if err != nil {
		return nil, internalErr(op, err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, internalErr(op, err)
	}
	_, statErr := os.Stat(abs)
	existed := statErr == nil
	if err := os.WriteFile(abs, in.Data, 0o644); err != nil {
		return nil, internalErr(op, err)
	}

	now := s.now().UTC()
	meta, _ := json.Marshal(ingestMetadata{
		Source:         string(in.Source),
		ConversationID: in.ConversationID,
		MessageID:      in.MessageID,
		Index:          in.Index,
		TTLDays:        s.ttlDays,
	})
	row := &FileAsset{
		ID:              id,
		TenantID:        in.TenantID,
		UserID:          in.UserID,
		SourceType:      in.Source,
		ReferenceType:   in.ReferenceType,
		ReferenceID:     in.ReferenceID,
		Kind:            kind,
		Mime:            mime,
		Bytes:           int64(len(in.Data)),
		SHA256:          hash,
		Status:          StatusStored,
		StorageProvider: ProviderLocalFS,
		StorageKey:      key,
		IsPrivate:       true,
		ExpiresAt:       expiryFor(in.Source, now, s.ttlDays),
		Metadata:        datatypes.JSON(meta),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Create(ctx, row); err != nil {
		// Only roll back a file this call created; an overwritten file may back another row.
		if !existed {
			if rmErr := os.Remove(abs); rmErr != nil {
				s.log.Warn("rollback of written file failed", "key", key, "error", rmErr)
			}
		}
		if IsKind(err, KindConflict) {
			return nil, err
		}
		return nil, internalErr(op, err)
	}

	s.log.Info("asset stored", "asset_id", id, "key", key, "bytes", row.Bytes, "source", in.Source)
	return &IngestResult{
		AssetID:    id,
		URL:        s.assetURL(id),
		Mime:       mime,
		Bytes:      row.Bytes,
		SHA256:     hash,
		StorageKey: key,
	}, nil
}

func (s *Service) assetURL(id string) string {
	return s.publicBase + "/assets/" + id
}

// expiryFor returns now+ttlDays for ephemeral sources and nil otherwise.
func expiryFor(source SourceType, now time.Time, ttlDays int) *time.Time {
	if !source.Ephemeral() {
		return nil
	}
	t := now.Add(time.Duration(ttlDays) * 24 * time.Hour)
	return &t
}

func parseIndex(op string, v *float64) (int, error) {
	if v == nil {
		return 0, nil
	}
	f := *v
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, validationErr(op, "index must be a finite number >= 0")
	}
	if f != math.Trunc(f) || f > maxIndex {
		return 0, validationErr(op, "index must be a whole number no greater than %d", maxIndex)
	}
	return int(f), nil
}
