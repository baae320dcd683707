package mailbox

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/clouddesk/internal/shared/paths"
)

// Backup is one superseded mailbox document
type Backup struct {
	Path    string    `json:"path"`
	Epoch   int64     `json:"epoch"`
	Seq     int       `json:"seq"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
}

// Backups lists superseded documents, newest first
func (s *Store) Backups() ([]Backup, error) {
	pattern := paths.BackupGlob(s.name)

	var (
		mu      sync.Mutex
		backups []Backup
	)
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, s.dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if filepath.Clean(p) != s.dir {
				return filepath.SkipDir
			}
			return nil
		}

		base := filepath.Base(p)
		if ok, _ := doublestar.Match(pattern, base); !ok {
			return nil
		}
		epoch, seq, ok := paths.BackupEpoch(base)
		if !ok {
			return nil
		}

		b := Backup{Path: p, Epoch: epoch, Seq: seq}
		if info, err := d.Info(); err == nil {
			b.Size = info.Size()
			b.ModTime = info.ModTime()
		}

		mu.Lock()
		backups = append(backups, b)
		mu.Unlock()
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("mailbox: list backups: %w", err)
	}

	sort.Slice(backups, func(i, j int) bool {
		if backups[i].Epoch != backups[j].Epoch {
			return backups[i].Epoch > backups[j].Epoch
		}
		return backups[i].Seq > backups[j].Seq
	})
	return backups, nil
}

type archiveLine struct {
	Name    string      `json:"name"`
	Epoch   int64       `json:"epoch"`
	Seq     int         `json:"seq"`
	Payload interface{} `json:"payload"`
}

// Archive writes every backup, oldest first, as zstd-compressed JSON lines.
// Payloads that are not valid JSON are stored as strings.
func (s *Store) Archive(w io.Writer) (int, error) {
	backups, err := s.Backups()
	if err != nil {
		return 0, err
	}

	enc, err := zstd.NewWriter(w)
	if err != nil {
		return 0, fmt.Errorf("mailbox: create archive encoder: %w", err)
	}

	written := 0
	for i := len(backups) - 1; i >= 0; i-- {
		b := backups[i]
		data, err := os.ReadFile(b.Path)
		if err != nil {
			s.logger.Warn("Skipping unreadable backup", zap.String("path", b.Path), zap.Error(err))
			continue
		}

		line := archiveLine{Name: filepath.Base(b.Path), Epoch: b.Epoch, Seq: b.Seq}
		if api.Valid(data) {
			line.Payload = rawJSON(data)
		} else {
			line.Payload = string(data)
		}

		encoded, err := api.Marshal(line)
		if err != nil {
			enc.Close()
			return written, fmt.Errorf("mailbox: encode archive line: %w", err)
		}
		if _, err := enc.Write(append(encoded, '\n')); err != nil {
			enc.Close()
			return written, fmt.Errorf("mailbox: write archive: %w", err)
		}
		written++
	}

	if err := enc.Close(); err != nil {
		return written, fmt.Errorf("mailbox: finish archive: %w", err)
	}
	return written, nil
}

// Purge removes the active document and every backup. With ArchiveOnPurge
// the backups are first bundled into <name>.archive_<epoch>.jsonl.zst.
func (s *Store) Purge() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.archiveOnPurge {
		if _, err := s.archiveToFile(); err != nil {
			s.logger.Warn("Mailbox archive before purge failed", zap.Error(err))
		}
	}

	backups, err := s.Backups()
	if err != nil {
		return err
	}

	var errs []error
	if err := os.Remove(s.Path()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		errs = append(errs, err)
	}
	for _, b := range backups {
		if err := os.Remove(b.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}

	// Leftovers from interrupted writes
	if leftovers, err := filepath.Glob(filepath.Join(s.dir, s.name+".tmp-*")); err == nil {
		for _, p := range leftovers {
			_ = os.Remove(p)
		}
	}

	if s.metrics != nil {
		s.metrics.RecordMailboxPurge()
	}
	s.logger.Info("Mailbox purged", zap.Int("backups", len(backups)), zap.Int("errors", len(errs)))

	if len(errs) > 0 {
		return fmt.Errorf("mailbox: purge: %w", errors.Join(errs...))
	}
	return nil
}

// ArchiveBackups bundles every backup into <name>.archive_<epoch>.jsonl.zst
// and returns its path. Backups are left in place. An empty path means there
// was nothing to archive.
func (s *Store) ArchiveBackups() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.archiveToFile()
}

func (s *Store) archiveToFile() (string, error) {
	backups, err := s.Backups()
	if err != nil || len(backups) == 0 {
		return "", err
	}

	name := fmt.Sprintf("%s.archive_%d.jsonl.zst", s.name, s.now().Unix())
	path := filepath.Join(s.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}

	n, err := s.Archive(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", err
	}

	s.logger.Info("Mailbox backups archived", zap.String("path", path), zap.Int("documents", n))
	return path, nil
}

// Restore reinstates the newest backup as the active document. The document
// it displaces is itself kept as a backup.
func (s *Store) Restore() (Backup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	backups, err := s.Backups()
	if err != nil {
		return Backup{}, err
	}
	if len(backups) == 0 {
		return Backup{}, ErrNoBackup
	}
	newest := backups[0]

	data, err := os.ReadFile(newest.Path)
	if err != nil {
		return Backup{}, fmt.Errorf("mailbox: read backup: %w", err)
	}
	displaced, err := s.replace(data)
	if err != nil {
		return Backup{}, err
	}

	s.logger.Info("Mailbox document restored",
		zap.String("from", newest.Path),
		zap.String("displaced", displaced))
	return newest, nil
}

// ArchivePaths lists archive bundles left behind by purges
func (s *Store) ArchivePaths() ([]string, error) {
	pattern := filepath.Join(escapeForGlob(s.dir), escapeForGlob(s.name)+".archive_*.jsonl.zst")
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

func escapeForGlob(s string) string {
	return strings.NewReplacer("*", `\*`, "?", `\?`, "[", `\[`, "{", `\{`).Replace(s)
}

type rawJSON []byte

func (r rawJSON) MarshalJSON() ([]byte, error) {
	return r, nil
}
