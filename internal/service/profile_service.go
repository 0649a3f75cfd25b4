package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/alanyoungcy/wagerloo/internal/domain"
)

// Asset kinds a profile can carry.
const (
	AssetPicture = "picture"
	AssetResume  = "resume"
)

// multipartThreshold is the size above which assets use multipart upload.
const multipartThreshold = 5 * 1024 * 1024

// BlobStore is the object storage a ProfileService needs.
type BlobStore interface {
	domain.BlobWriter
	domain.BlobReader
	domain.BlobDeleter
}

// ProfileConfig tunes profile creation.
type ProfileConfig struct {
	InitialLine   float64
	MaxAssetBytes int
}

// ProfileInput carries editable profile fields. ProfilePicture and ResumeURL
// may be http(s) URLs, data: URLs (uploaded to object storage) or empty.
type ProfileInput struct {
	Name           string
	ProfilePicture string
	ResumeURL      string
}

// ProfileService creates and edits profiles and their markets.
type ProfileService struct {
	profiles domain.ProfileStore
	txs      domain.TxStore
	blobs    BlobStore
	audit    domain.AuditStore
	cfg      ProfileConfig
	logger   *slog.Logger
}

// NewProfileService creates a ProfileService. audit may be nil.
func NewProfileService(
	profiles domain.ProfileStore,
	txs domain.TxStore,
	blobs BlobStore,
	audit domain.AuditStore,
	cfg ProfileConfig,
	logger *slog.Logger,
) *ProfileService {
	if cfg.InitialLine == 0 {
		cfg.InitialLine = domain.InitialLine
	}
	return &ProfileService{
		profiles: profiles,
		txs:      txs,
		blobs:    blobs,
		audit:    audit,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "profile_service")),
	}
}

// AssetPath is the object key for a profile asset.
func AssetPath(profileID, kind string) string {
	return "profiles/" + profileID + "/" + kind
}

// AssetURL is the public URL that streams a stored profile asset.
func AssetURL(profileID, kind string) string {
	return "/api/profiles/" + profileID + "/" + kind
}

// Create makes the caller's profile and its market in one transaction. A
// user has at most one profile; a second attempt is ErrAlreadyExists.
func (s *ProfileService) Create(ctx context.Context, userID string, in ProfileInput) (domain.Profile, domain.Market, error) {
	if userID == "" {
		return domain.Profile{}, domain.Market{}, domain.ErrUnauthenticated
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Profile{}, domain.Market{}, domain.ErrInvalidInput
	}

	profile := domain.Profile{ID: uuid.NewString(), UserID: userID, Name: name}
	uploaded, err := s.resolveAssets(ctx, &profile, in)
	if err != nil {
		return domain.Profile{}, domain.Market{}, err
	}

	market := domain.Market{
		ID:          uuid.NewString(),
		ProfileID:   profile.ID,
		OwnerUserID: userID,
		Title:       name + " - Next Co-op",
		Description: "Over/under on " + name + "'s next co-op salary",
		Status:      domain.MarketStatusActive,
		CurrentLine: s.cfg.InitialLine,
		InitialLine: s.cfg.InitialLine,
	}

	if err := s.createTx(ctx, profile, market); err != nil {
		s.discard(ctx, uploaded)
		return domain.Profile{}, domain.Market{}, err
	}

	if s.audit != nil {
		if err := s.audit.Log(ctx, "profile.created", map[string]any{
			"user_id":    userID,
			"profile_id": profile.ID,
			"market_id":  market.ID,
		}); err != nil {
			s.logger.WarnContext(ctx, "profile_service: audit log failed", slog.String("error", err.Error()))
		}
	}
	s.logger.InfoContext(ctx, "profile_service: profile created",
		slog.String("profile_id", profile.ID),
		slog.String("market_id", market.ID),
	)
	return profile, market, nil
}

func (s *ProfileService) createTx(ctx context.Context, p domain.Profile, m domain.Market) error {
	tx, err := s.txs.Begin(ctx)
	if err != nil {
		return fmt.Errorf("profile_service: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.CreateProfile(ctx, p); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("profile_service: create profile: %w", err)
	}
	if err := tx.CreateMarket(ctx, m); err != nil {
		return fmt.Errorf("profile_service: create market: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("profile_service: commit: %w", err)
	}
	return nil
}

// Get returns the caller's profile.
func (s *ProfileService) Get(ctx context.Context, userID string) (domain.Profile, error) {
	if userID == "" {
		return domain.Profile{}, domain.ErrUnauthenticated
	}
	p, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Profile{}, domain.ErrNotFound
		}
		return domain.Profile{}, fmt.Errorf("profile_service: get: %w", err)
	}
	return p, nil
}

// Update replaces the caller's editable profile fields. The market title is
// not renamed.
func (s *ProfileService) Update(ctx context.Context, userID string, in ProfileInput) (domain.Profile, error) {
	current, err := s.Get(ctx, userID)
	if err != nil {
		return domain.Profile{}, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Profile{}, domain.ErrInvalidInput
	}

	updated := current
	updated.Name = name
	if _, err := s.resolveAssets(ctx, &updated, in); err != nil {
		return domain.Profile{}, err
	}

	if err := s.profiles.Update(ctx, updated); err != nil {
		return domain.Profile{}, fmt.Errorf("profile_service: update: %w", err)
	}
	s.dropReplacedAssets(ctx, current, updated)
	return s.profiles.GetByID(ctx, updated.ID)
}

// OpenAsset streams a stored picture or resume.
func (s *ProfileService) OpenAsset(ctx context.Context, profileID, kind string) (io.ReadCloser, error) {
	if kind != AssetPicture && kind != AssetResume {
		return nil, domain.ErrNotFound
	}
	rc, err := s.blobs.Get(ctx, AssetPath(profileID, kind))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("profile_service: open asset: %w", err)
	}
	return rc, nil
}

// resolveAssets validates both assets of in, stores any data: URLs and
// writes the resulting public URLs onto p. It returns the object keys it
// uploaded.
func (s *ProfileService) resolveAssets(ctx context.Context, p *domain.Profile, in ProfileInput) ([]string, error) {
	type pending struct {
		kind string
		mime string
		data []byte
	}
	var uploads []pending

	for _, a := range []struct {
		kind  string
		value string
		dst   *string
	}{
		{AssetPicture, strings.TrimSpace(in.ProfilePicture), &p.ProfilePicture},
		{AssetResume, strings.TrimSpace(in.ResumeURL), &p.ResumeURL},
	} {
		switch {
		case a.value == "":
			*a.dst = ""
		case strings.HasPrefix(a.value, "data:"):
			mime, data, err := parseDataURL(a.value)
			if err != nil || len(data) == 0 {
				return nil, domain.ErrInvalidInput
			}
			if s.cfg.MaxAssetBytes > 0 && len(data) > s.cfg.MaxAssetBytes {
				return nil, domain.ErrInvalidInput
			}
			uploads = append(uploads, pending{kind: a.kind, mime: mime, data: data})
			*a.dst = AssetURL(p.ID, a.kind)
		case isWebURL(a.value) || a.value == AssetURL(p.ID, a.kind):
			*a.dst = a.value
		default:
			return nil, domain.ErrInvalidInput
		}
	}

	var uploaded []string
	for _, u := range uploads {
		path, err := s.upload(ctx, p.ID, u.kind, u.mime, u.data)
		if err != nil {
			s.discard(ctx, uploaded)
			return nil, err
		}
		uploaded = append(uploaded, path)
	}
	return uploaded, nil
}

func (s *ProfileService) upload(ctx context.Context, profileID, kind, mime string, data []byte) (string, error) {
	path := AssetPath(profileID, kind)
	var err error
	if len(data) > multipartThreshold {
		err = s.blobs.PutMultipart(ctx, path, bytes.NewReader(data), multipartThreshold)
	} else {
		err = s.blobs.Put(ctx, path, bytes.NewReader(data), mime)
	}
	if err != nil {
		return "", fmt.Errorf("profile_service: upload %s: %w", kind, err)
	}
	return path, nil
}
// dropReplacedAssets deletes stored assets the update pointed elsewhere.
func (s *ProfileService) dropReplacedAssets(ctx context.Context, before, after domain.Profile) {
	var stale []string
	if before.ProfilePicture == AssetURL(before.ID, AssetPicture) && after.ProfilePicture != before.ProfilePicture {
		stale = append(stale, AssetPath(before.ID, AssetPicture))
	}
	if before.ResumeURL == AssetURL(before.ID, AssetResume) && after.ResumeURL != before.ResumeURL {
		stale = append(stale, AssetPath(before.ID, AssetResume))
	}
	s.discard(ctx, stale)
}

func (s *ProfileService) discard(ctx context.Context, paths []string) {
	for _, p := range paths {
		if err := s.blobs.Delete(ctx, p); err != nil {
			s.logger.WarnContext(ctx, "profile_service: delete asset failed",
				slog.String("path", p),
				slog.String("error", err.Error()),
			)
		}
	}
}
