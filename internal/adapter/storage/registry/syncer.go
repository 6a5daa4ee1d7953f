package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"chainhealth/internal/config"
	"chainhealth/internal/pkg/apperrors"

	"go.uber.org/zap"
)

// CommandRunner runs an external command in dir.
type CommandRunner interface {
	Run(ctx context.Context, dir string, name string, args ...string) error
}

// ExecRunner implements CommandRunner with os/exec.
type ExecRunner struct{}

// Run executes the command and folds its combined output into the error.
func (ExecRunner) Run(ctx context.Context, dir string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(out.String()))
	}
	return nil
}

// Syncer keeps the local chain-registry snapshot no older than the configured staleness.
type Syncer struct {
	repoURL    string
	dir        string
	staleAfter time.Duration
	runner     CommandRunner
	onUpdate   func()
	now        func() time.Time
	isSyncing  *atomic.Bool
	logger     *zap.Logger
}

// NewSyncer creates a syncer. onUpdate runs after every successful clone or pull.
func NewSyncer(cfg config.RegistryConfig, runner CommandRunner, onUpdate func(), logger *zap.Logger) *Syncer {
	if runner == nil {
		runner = ExecRunner{}
	}
	if onUpdate == nil {
		onUpdate = func() {}
	}
	return &Syncer{
		repoURL:    cfg.RepoURL,
		dir:        cfg.Dir,
		staleAfter: cfg.GetStaleAfter(),
		runner:     runner,
		onUpdate:   onUpdate,
		now:        time.Now,
		isSyncing:  new(atomic.Bool),
		logger:     logger.Named("RegistrySyncer"),
	}
}

// IsStale reports whether the snapshot is missing or older than the staleness threshold.
func (s *Syncer) IsStale() (bool, error) {
	info, err := os.Stat(filepath.Join(s.dir, ".git"))
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return s.now().Sub(info.ModTime()) > s.staleAfter, nil
}

// Sync clones the registry when absent and pulls it when stale.
// A concurrent call returns immediately.
func (s *Syncer) Sync(ctx context.Context) error {
	if !s.isSyncing.CompareAndSwap(false, true) {
		s.logger.Debug("Registry sync already in progress")
		return nil
	}
	defer s.isSyncing.Store(false)

	gitDir := filepath.Join(s.dir, ".git")
	if _, err := os.Stat(gitDir); errors.Is(err, fs.ErrNotExist) {
		return s.clone(ctx)
	}

	stale, err := s.IsStale()
	if err != nil {
		return fmt.Errorf("%w: checking registry snapshot: %v", apperrors.ErrInternal, err)
	}
	if !stale {
		s.logger.Debug("Registry snapshot is fresh", zap.String("dir", s.dir))
		return nil
	}
	return s.update(ctx, gitDir)
}

func (s *Syncer) clone(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.dir), 0o755); err != nil {
		return fmt.Errorf("%w: creating registry parent dir: %v", apperrors.ErrInternal, err)
	}

	s.logger.Info("Cloning chain registry", zap.String("url", s.repoURL), zap.String("dir", s.dir))
	if err := s.runner.Run(ctx, "", "git", "clone", "--depth", "1", s.repoURL, s.dir); err != nil {
		s.logger.Error("Failed to clone chain registry", zap.Error(err))
		return fmt.Errorf("%w: cloning registry: %v", apperrors.ErrExternalServiceFailure, err)
	}

	s.logger.Info("Chain registry cloned")
	s.onUpdate()
	return nil
}

func (s *Syncer) update(ctx context.Context, gitDir string) error {
	s.logger.Info("Updating chain registry", zap.String("dir", s.dir))
	if err := s.runner.Run(ctx, s.dir, "git", "pull"); err != nil {
		s.logger.Warn("Registry pull failed, resetting to origin", zap.Error(err))
		for _, args := range [][]string{
			{"fetch", "--all"},
			{"reset", "--hard", "origin/HEAD"},
			{"pull"},
		} {
			if err := s.runner.Run(ctx, s.dir, "git", args...); err != nil {
				s.logger.Error("Failed to reset chain registry", zap.Error(err))
				return fmt.Errorf("%w: resetting registry: %v", apperrors.ErrExternalServiceFailure, err)
			}
		}
	}

	// A pull without new commits may leave .git untouched.
	now := s.now()
	if err := os.Chtimes(gitDir, now, now); err != nil {
		s.logger.Warn("Failed to touch registry snapshot", zap.Error(err))
	}

	s.logger.Info("Chain registry updated")
	s.onUpdate()
	return nil
}

// Run syncs the registry every staleness period until ctx is cancelled.
func (s *Syncer) Run(ctx context.Context) {
	if s.staleAfter <= 0 {
		s.logger.Info("Registry syncer disabled (stale threshold <= 0)")
		return
	}

	s.logger.Info("Starting registry syncer", zap.Duration("interval", s.staleAfter))
	ticker := time.NewTicker(s.staleAfter)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Sync(ctx); err != nil {
				if ctx.Err() != nil {
					s.logger.Warn("Periodic registry sync cancelled due to application shutdown")
				} else {
					s.logger.Error("Error during periodic registry sync", zap.Error(err))
				}
			}
		case <-ctx.Done():
			s.logger.Info("Registry syncer stopping due to context cancellation.")
			return
		}
	}
}
