package asset

import (
	"context"
	"errors"
	"os"
)

func (s *Service) SetFavorite(ctx context.Context, req Requester, id string, favorite bool) error {
	return s.setFlag(ctx, "asset.SetFavorite", req, id, "is_favorite", favorite)
}

func (s *Service) SetPinned(ctx context.Context, req Requester, id string, pinned bool) error {
	return s.setFlag(ctx, "asset.SetPinned", req, id, "is_pinned", pinned)
}

func (s *Service) setFlag(ctx context.Context, op string, req Requester, id, column string, value bool) error {
	if _, err := s.authorize(ctx, op, req, id, true); err != nil {
		return err
	}
	err := s.repo.UpdateFlags(ctx, id, map[string]any{
		column:       value,
		"updated_at": s.now().UTC(),
	})
	if errors.Is(err, ErrAssetNotFound) {
		return notFoundErr(op, err)
	}
	if err != nil {
		return internalErr(op, err)
	}
	return nil
}

// Delete unlinks the blob on a best-effort basis, then removes the row regardless.
func (s *Service) Delete(ctx context.Context, req Requester, id string) error {
	const op = "asset.Delete"

	a, err := s.authorize(ctx, op, req, id, true)
	if err != nil {
		return err
	}

	if a.StorageProvider == ProviderLocalFS {
		s.unlink(a)
	}

	if err := s.repo.Delete(ctx, a.ID); err != nil {
		return internalErr(op, err)
	}
	s.log.Info("asset deleted", "asset_id", a.ID, "provider", a.StorageProvider)
	return nil
}

// unlink removes the blob behind a local_fs row. Failures are logged and swallowed.
func (s *Service) unlink(a *FileAsset) {
	abs, err := s.root.Resolve(a.StorageKey)
	if err != nil {
		s.log.Error("refusing to unlink key outside storage root", "asset_id", a.ID, "key", a.StorageKey, "error", err)
		return
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warn("failed to unlink asset file", "asset_id", a.ID, "key", a.StorageKey, "error", err)
	}
}
