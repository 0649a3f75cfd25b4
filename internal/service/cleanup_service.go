package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/wagerloo/internal/domain"
)

const cleanupLockKey = "cleanup"

// Alerter notifies operators.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// CleanupReport summarizes one cleanup run.
type CleanupReport struct {
	KeptUserID string
	Users      int
	Markets    int64
	Profiles   int64
	Votes      int64
	Archives   []string
}

// CleanupService deletes every account except one. Every vote row removed
// along with a user is archived before the deletion commits.
type CleanupService struct {
	users    domain.UserStore
	profiles domain.ProfileStore
	txs      domain.TxStore
	cache    domain.MarketCache
	archiver domain.VoteArchiver
	blobs    domain.BlobDeleter
	locks    domain.LockManager
	audit    domain.AuditStore
	alerts   Alerter
	lockTTL  time.Duration
	logger   *slog.Logger
}

// CleanupDeps groups CleanupService collaborators. Cache, Blobs, Locks, Audit
// and Alerts may be nil.
type CleanupDeps struct {
	Users    domain.UserStore
	Profiles domain.ProfileStore
	Txs      domain.TxStore
	Cache    domain.MarketCache
	Archiver domain.VoteArchiver
	Blobs    domain.BlobDeleter
	Locks    domain.LockManager
	Audit    domain.AuditStore
	Alerts   Alerter
}

// NewCleanupService creates a CleanupService.
func NewCleanupService(deps CleanupDeps, lockTTL time.Duration, logger *slog.Logger) *CleanupService {
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	return &CleanupService{
		users:    deps.Users,
		profiles: deps.Profiles,
		txs:      deps.Txs,
		cache:    deps.Cache,
		archiver: deps.Archiver,
		blobs:    deps.Blobs,
		locks:    deps.Locks,
		audit:    deps.Audit,
		alerts:   deps.Alerts,
		lockTTL:  lockTTL,
		logger:   logger.With(slog.String("component", "cleanup_service")),
	}
}

// Run deletes every user other than the one registered as keepEmail. Each
// user is removed in its own transaction, which commits only after the
// deleted votes are archived; a failure stops the run and leaves later users
// untouched.
func (s *CleanupService) Run(ctx context.Context, keepEmail string) (CleanupReport, error) {
	keepEmail = strings.ToLower(strings.TrimSpace(keepEmail))
	if keepEmail == "" {
		return CleanupReport{}, domain.ErrInvalidInput
	}

	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, cleanupLockKey, s.lockTTL)
		if err != nil {
			return CleanupReport{}, fmt.Errorf("cleanup_service: %w", err)
		}
		defer unlock()
	}

	report, err := s.run(ctx, keepEmail)
	if err != nil {
		s.alert(ctx, "cleanup.failed", "Cleanup failed", err.Error())
		return report, err
	}

	if s.audit != nil {
		if err := s.audit.Log(ctx, "cleanup.completed", map[string]any{
			"kept_user_id": report.KeptUserID,
			"users":        report.Users,
			"markets":      report.Markets,
			"profiles":     report.Profiles,
			"votes":        report.Votes,
			"archives":     report.Archives,
		}); err != nil {
			s.logger.WarnContext(ctx, "cleanup_service: audit log failed", slog.String("error", err.Error()))
		}
	}
	s.alert(ctx, "cleanup.completed", "Cleanup completed",
		fmt.Sprintf("Deleted %d users, %d markets, %d votes. Kept %s.",
			report.Users, report.Markets, report.Votes, keepEmail))
	return report, nil
}

func (s *CleanupService) run(ctx context.Context, keepEmail string) (CleanupReport, error) {
	keep, err := s.users.GetByEmail(ctx, keepEmail)
	if errors.Is(err, domain.ErrNotFound) {
		return CleanupReport{}, fmt.Errorf("cleanup_service: keep user %s: %w", keepEmail, domain.ErrNotFound)
	}
	if err != nil {
		return CleanupReport{}, fmt.Errorf("cleanup_service: keep user: %w", err)
	}

	doomed, err := s.users.ListExcept(ctx, keep.ID)
	if err != nil {
		return CleanupReport{}, fmt.Errorf("cleanup_service: list users: %w", err)
	}
	s.logger.InfoContext(ctx, "cleanup_service: starting",
		slog.String("kept_user_id", keep.ID),
		slog.Int("to_delete", len(doomed)),
	)

	report := CleanupReport{KeptUserID: keep.ID}
	for _, u := range doomed {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("cleanup_service: %w", err)
		}
		if err := s.deleteUser(ctx, u, &report); err != nil {
			return report, err
		}
	}
	return report, nil
}

func (s *CleanupService) deleteUser(ctx context.Context, u domain.User, report *CleanupReport) error {
	var profileID string
	if p, err := s.profiles.GetByUserID(ctx, u.ID); err == nil {
		profileID = p.ID
	} else if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("cleanup_service: profile of %s: %w", u.ID, err)
	}

	tx, err := s.txs.Begin(ctx)
	if err != nil {
		return fmt.Errorf("cleanup_service: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	d, err := tx.DeleteUser(ctx, u.ID)
	if err != nil {
		return fmt.Errorf("cleanup_service: delete %s: %w", u.ID, err)
	}

	// Archive inside the transaction so a failed upload rolls the delete back.
	path, err := s.archiver.ArchiveVotes(ctx, u.ID, d.Votes)
	if err != nil {
		return fmt.Errorf("cleanup_service: archive votes of %s: %w", u.ID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("cleanup_service: commit delete %s: %w", u.ID, err)
	}
	if path != "" {
		report.Archives = append(report.Archives, path)
	}

	report.Users++
	report.Markets += int64(len(d.Markets))
	report.Profiles += d.Profiles
	report.Votes += int64(len(d.Votes))

	if s.cache != nil {
		for _, id := range d.Markets {
			if err := s.cache.Invalidate(ctx, id); err != nil {
				s.logger.WarnContext(ctx, "cleanup_service: cache invalidate failed",
					slog.String("market_id", id),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	if profileID != "" && s.blobs != nil {
		for _, kind := range []string{AssetPicture, AssetResume} {
			if err := s.blobs.Delete(ctx, AssetPath(profileID, kind)); err != nil {
				s.logger.WarnContext(ctx, "cleanup_service: delete asset failed",
					slog.String("profile_id", profileID),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	s.logger.InfoContext(ctx, "cleanup_service: deleted user",
		slog.String("user_id", u.ID),
		slog.Int("markets", len(d.Markets)),
		slog.Int("votes", len(d.Votes)),
	)
	return nil
}

func (s *CleanupService) alert(ctx context.Context, event, title, msg string) {
	if s.alerts == nil {
		return
	}
	if err := s.alerts.Notify(ctx, event, title, msg); err != nil {
		s.logger.WarnContext(ctx, "cleanup_service: alert failed", slog.String("error", err.Error()))
	}
}
