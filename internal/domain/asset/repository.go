package asset

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

type Scope string

const (
	ScopeMine   Scope = "mine"
	ScopeTenant Scope = "tenant"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// ListFilter narrows the catalog for one requester. Favorite is nil when unfiltered.
type ListFilter struct {
	TenantID    string
	Scope       Scope
	SourceTypes []SourceType
	Kind        Kind
	Favorite    *bool
	Limit       int
	Offset      int
}

type ListPage struct {
	Items      []*FileAsset `json:"items"`
	TotalBytes int64        `json:"total_bytes"`
	TotalCount int64        `json:"total_count"`
}

// Predicate is a raw SQL condition with its bind arguments.
type Predicate struct {
	SQL  string
	Args []any
}

type Repository interface {
	Create(ctx context.Context, a *FileAsset) error
	GetByID(ctx context.Context, id string) (*FileAsset, error)
	UpdateFlags(ctx context.Context, id string, fields map[string]any) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f ListFilter, owned Predicate) (*ListPage, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*FileAsset, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, a *FileAsset) error {
	err := r.db.WithContext(ctx).Create(a).Error
	if isUniqueViolation(err) {
		return &Error{Kind: KindConflict, Op: "asset.Create", Detail: "asset id already exists", Err: err}
	}
	return err
}

func (r *repository) GetByID(ctx context.Context, id string) (*FileAsset, error) {
	var a FileAsset
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAssetNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *repository) UpdateFlags(ctx context.Context, id string, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(&FileAsset{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAssetNotFound
	}
	return nil
}

// Delete is a no-op for ids that are already gone.
func (r *repository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&FileAsset{}).Error
}

func (r *repository) List(ctx context.Context, f ListFilter, owned Predicate) (*ListPage, error) {
	var totals listTotals
	err := r.filtered(ctx, f, owned).
		Select("COUNT(*) AS total_count, COALESCE(SUM(bytes), 0) AS total_bytes").
		Scan(&totals).Error
	if err != nil {
		return nil, err
	}

	items := make([]*FileAsset, 0)
	err = r.filtered(ctx, f, owned).
		Order("is_pinned DESC").
		Order("created_at DESC").
		Order("id ASC").
		Limit(f.Limit).
		Offset(f.Offset).
		Find(&items).Error
	if err != nil {
		return nil, err
	}

	return &ListPage{Items: items, TotalBytes: totals.TotalBytes, TotalCount: totals.TotalCount}, nil
}

type listTotals struct {
	TotalCount int64
	TotalBytes int64
}

func (r *repository) filtered(ctx context.Context, f ListFilter, owned Predicate) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&FileAsset{}).Where("status = ?", StatusStored)

	switch f.Scope {
	case ScopeTenant:
		q = q.Where("tenant_id = ?", f.TenantID).
			Where(r.db.Where("is_private = ?", false).Or(owned.SQL, owned.Args...))
	default:
		q = q.Where(owned.SQL, owned.Args...)
	}
	if len(f.SourceTypes) > 0 {
		q = q.Where("source_type IN ?", f.SourceTypes)
	}
	if f.Kind != "" {
		q = q.Where("kind = ?", f.Kind)
	}
	if f.Favorite != nil {
		q = q.Where("is_favorite = ?", *f.Favorite)
	}
	return q
}

func (r *repository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*FileAsset, error) {
	var rows []*FileAsset
	err := r.db.WithContext(ctx).
		Where("storage_provider = ?", ProviderLocalFS).
		Where("expires_at IS NOT NULL AND expires_at < ?", now.UTC()).
		Order("expires_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
