package asset

import (
	"context"
	"errors"
	"os"
	"time"
)

// Delivery is either a redirect or an open local file. The caller closes File.
type Delivery struct {
	Asset       *FileAsset
	RedirectURL string
	File        *os.File
	ModTime     time.Time
}

// authorize loads a stored asset the requester may see. Private assets, and every
// mutation, require the requester to be the resolved owner. All refusals look like a
// missing asset.
func (s *Service) authorize(ctx context.Context, op string, req Requester, id string, mutate bool) (*FileAsset, error) {
	a, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrAssetNotFound) {
		return nil, notFoundErr(op, err)
	}
	if err != nil {
		return nil, internalErr(op, err)
	}
	if a.Status != StatusStored {
		return nil, notFoundErr(op, ErrAssetNotFound)
	}
	if !a.IsPrivate && !mutate {
		return a, nil
	}
	if req.UserID == "" {
		return nil, notFoundErr(op, ErrAssetNotFound)
	}
	owner, err := s.owners.OwnerOf(ctx, a)
	if err != nil {
		return nil, internalErr(op, err)
	}
	if owner == "" || owner != req.UserID {
		return nil, notFoundErr(op, ErrAssetNotFound)
	}
	return a, nil
}

// Open authorizes a read and dispatches on the storage provider.
func (s *Service) Open(ctx context.Context, req Requester, id string) (*Delivery, error) {
	const op = "asset.Open"

	a, err := s.authorize(ctx, op, req, id, false)
	if err != nil {
		return nil, err
	}

	switch a.StorageProvider {
	case ProviderHTTP:
		target := a.StorageURL
		if target == "" {
			target = a.CDNURL
		}
		if target == "" {
			return nil, notFoundErr(op, errors.New("http asset has no url"))
		}
		if s.signer != nil {
			signed, err := s.signer.SignURL(ctx, target)
			if err != nil {
				return nil, internalErr(op, err)
			}
			target = signed
		}
		return &Delivery{Asset: a, RedirectURL: target}, nil

	case ProviderLocalFS:
		abs, err := s.root.Resolve(a.StorageKey)
		if err != nil {
			s.log.Error("stored key failed containment check", "asset_id", a.ID, "key", a.StorageKey, "error", err)
			return nil, notFoundErr(op, err)
		}
		f, err := os.Open(abs)
		if err != nil {
			return nil, internalErr(op, err)
		}
		modTime := a.CreatedAt
		if info, err := f.Stat(); err == nil {
			modTime = info.ModTime()
		}
		return &Delivery{Asset: a, File: f, ModTime: modTime}, nil

	default:
		s.log.Warn("unsupported storage provider", "asset_id", a.ID, "provider", a.StorageProvider)
		return nil, &Error{Kind: KindUnsupportedProvider, Op: op, Detail: string(a.StorageProvider)}
	}
}

// Meta returns the catalog row under the same rules as Open.
func (s *Service) Meta(ctx context.Context, req Requester, id string) (*FileAsset, error) {
	return s.authorize(ctx, "asset.Meta", req, id, false)
}

// List returns one page of the requester's visible assets plus totals over the whole filter.
func (s *Service) List(ctx context.Context, req Requester, f ListFilter) (*ListPage, error) {
	const op = "asset.List"

	if req.UserID == "" {
		return nil, validationErr(op, "requester identity is required")
	}
	switch f.Scope {
	case "":
		f.Scope = ScopeMine
	case ScopeMine, ScopeTenant:
	default:
		return nil, validationErr(op, "scope must be mine or tenant")
	}
	if f.Kind != "" && !f.Kind.Valid() {
		return nil, validationErr(op, "kind must be one of image, audio, video, file")
	}
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	f.TenantID = req.TenantID

	sql, args := s.owners.OwnedBy(req.UserID)
	page, err := s.repo.List(ctx, f, Predicate{SQL: sql, Args: args})
	if err != nil {
		return nil, internalErr(op, err)
	}
	return page, nil
}
