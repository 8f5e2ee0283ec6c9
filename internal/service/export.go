package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/insignia/internal/apperror"
	"github.com/sakif/insignia/internal/model"
	"github.com/sakif/insignia/internal/repository"
)

// ExportFileName is the name offered to the browser for every download.
const ExportFileName = "insignia_users.csv"

const (
	snapshotExt = ".csv"
	inflightExt = ".inflight"
	partialExt  = ".partial"
)

// TokenIssuer signs and verifies download tokens. *auth.TokenService
// implements it.
type TokenIssuer interface {
	Generate(subject string, ttl time.Duration) (string, error)
	Validate(token string) (string, error)
}

// ExportService writes user snapshots to disk and hands each one out
// exactly once.
//
// LIFECYCLE OF A SNAPSHOT:
//  1. Export writes <dir>/<uuid>.partial, then renames it to <uuid>.csv.
//  2. The operator gets /download/<token>, where the token's subject is the
//     file name and its expiry is ttl.
//  3. Download renames <uuid>.csv to <uuid>.csv.inflight. Rename is atomic,
//     so of two concurrent downloads exactly one wins; the other sees 404.
//  4. The winner streams the in-flight file and deletes it on Close.
//
// Files nobody downloads are removed by the sweep at the start of the next
// export once they are older than ttl.
type ExportService struct {
	users   repository.IdentityRepository
	tokens  TokenIssuer
	dir     string
	ttl     time.Duration
	baseURL string
	now     func() time.Time
	logger  *slog.Logger
}

// NewExportService creates an ExportService storing snapshots in dir and
// building download URLs under baseURL.
func NewExportService(users repository.IdentityRepository, tokens TokenIssuer, dir string, ttl time.Duration, baseURL string, logger *slog.Logger) *ExportService {
	return &ExportService{
		users:   users,
		tokens:  tokens,
		dir:     dir,
		ttl:     ttl,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
		logger:  logger,
	}
}

// Export snapshots every stored user into a CSV file and returns the
// one-time download URL.
func (s *ExportService) Export(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return "", fmt.Errorf("service/export: creating %s: %w", s.dir, err)
	}
	s.sweep()

	identities, err := s.users.ListIdentities(ctx)
	if err != nil {
		return "", fmt.Errorf("service/export: listing users: %w", err)
	}

	name := uuid.NewString() + snapshotExt
	partial := filepath.Join(s.dir, name+partialExt)

	f, err := os.OpenFile(partial, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("service/export: creating snapshot: %w", err)
	}

	if err := errors.Join(writeSnapshot(f, identities), f.Close()); err != nil {
		os.Remove(partial)
		return "", fmt.Errorf("service/export: writing snapshot: %w", err)
	}

	if err := os.Rename(partial, filepath.Join(s.dir, name)); err != nil {
		os.Remove(partial)
		return "", fmt.Errorf("service/export: publishing snapshot: %w", err)
	}

	token, err := s.tokens.Generate(name, s.ttl)
	if err != nil {
		os.Remove(filepath.Join(s.dir, name))
		return "", fmt.Errorf("service/export: issuing token: %w", err)
	}

	s.logger.Info("users exported",
		slog.Int("users", len(identities)),
		slog.String("file", name),
	)
	return s.baseURL + "/download/" + token, nil
}

// Download claims the snapshot behind token. The caller must Close the
// returned reader, which deletes the file. Unknown, expired, tampered or
// already used tokens all yield apperror.ErrNotFound.
func (s *ExportService) Download(token string) (io.ReadCloser, error) {
	name, err := s.tokens.Validate(token)
	if err != nil {
		s.logger.Debug("download token rejected", slog.String("error", err.Error()))
		return nil, apperror.NotFound("export", "token")
	}
	if !validSnapshotName(name) {
		return nil, apperror.NotFound("export", "token")
	}

	src := filepath.Join(s.dir, name)
	claimed := src + inflightExt
	if err := os.Rename(src, claimed); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperror.NotFound("export", "token")
		}
		return nil, fmt.Errorf("service/export: claiming snapshot: %w", err)
	}

	f, err := os.Open(claimed)
	if err != nil {
		os.Remove(claimed)
		return nil, fmt.Errorf("service/export: opening snapshot: %w", err)
	}

	s.logger.Info("export downloaded", slog.String("file", name))
	return &snapshot{File: f, path: claimed}, nil
}

// sweep removes snapshot files older than the token lifetime. Errors are
// logged and otherwise ignored.
// writeSnapshot writes the CSV header and one row per identity.
func writeSnapshot(out io.Writer, identities []model.Identity) error {
	w := csv.NewWriter(out)
	if err := w.Write([]string{"id", "username", "email", "ip", "expires_at"}); err != nil {
		return err
	}
	for _, u := range identities {
		if err := w.Write([]string{
			u.ID.String(),
			u.Username,
			u.Email,
			u.SourceAddress,
			strconv.FormatInt(u.ExpiresAt.Unix(), 10),
		}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func (s *ExportService) sweep() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn("export sweep failed", slog.String("error", err.Error()))
		return
	}

	cutoff := s.now().Add(-s.ttl)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !isSnapshotFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err == nil {
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info("stale exports removed", slog.Int("files", removed))
	}
}

// validSnapshotName accepts only "<uuid>.csv", so a token subject can never
// point outside the export directory.
func validSnapshotName(name string) bool {
	id, ok := strings.CutSuffix(name, snapshotExt)
	if !ok {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil && filepath.Base(name) == name
}

func isSnapshotFile(name string) bool {
	for _, ext := range []string{snapshotExt, snapshotExt + inflightExt, snapshotExt + partialExt} {
		if strings.HasSuffix(name, ext) {
			return validSnapshotName(strings.TrimSuffix(name, ext) + snapshotExt)
		}
	}
	return false
}

// snapshot deletes its file once closed.
type snapshot struct {
	*os.File
	path string
}

func (s *snapshot) Close() error {
	err := s.File.Close()
	if rmErr := os.Remove(s.path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
		err = errors.Join(err, rmErr)
	}
	return err
}
