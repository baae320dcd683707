package mailbox

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/clouddesk/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/clouddesk/internal/shared/id"
	"github.com/GriffinCanCode/clouddesk/internal/shared/paths"
	"github.com/GriffinCanCode/clouddesk/internal/shared/types"
)

// MinDebounce is the shortest coalescing window Watch accepts
const MinDebounce = 500 * time.Millisecond

// Options configures a Store
type Options struct {
	Dir            string
	File           string
	Debounce       time.Duration
	ArchiveOnPurge bool
	Logger         *zap.Logger
	Metrics        *monitoring.Metrics
}

// Store is the single-writer file mailbox shared by the launcher and the
// processes it spawns. Writes replace the active file atomically; the
// superseded version is kept as a backup.
type Store struct {
	dir            string
	name           string
	debounce       time.Duration
	archiveOnPurge bool
	logger         *zap.Logger
	metrics        *monitoring.Metrics

	mu  sync.Mutex
	now func() time.Time
}

// New creates a store rooted at opts.Dir
func New(opts Options) (*Store, error) {
	if opts.Dir == "" {
		opts.Dir = paths.MailboxDir()
	}
	if opts.File == "" {
		opts.File = paths.DefaultMailboxFile
	}
	if filepath.Base(opts.File) != opts.File {
		return nil, fmt.Errorf("mailbox file name must not contain a directory: %q", opts.File)
	}
	if opts.Debounce < MinDebounce {
		opts.Debounce = MinDebounce
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create mailbox dir: %w", err)
	}

	return &Store{
		dir:            filepath.Clean(opts.Dir),
		name:           opts.File,
		debounce:       opts.Debounce,
		archiveOnPurge: opts.ArchiveOnPurge,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
		now:            time.Now,
	}, nil
}

// Path returns the active mailbox file
func (s *Store) Path() string {
	return filepath.Join(s.dir, s.name)
}

// Dir returns the mailbox directory
func (s *Store) Dir() string {
	return s.dir
}

// Write atomically replaces the active document. Normalized documents are
// stored as the canonical envelope; un-normalized ones are stored as their
// raw payload so they look exactly like a producer-written file.
func (s *Store) Write(doc *types.MailboxDocument) error {
	if doc == nil {
		return errors.New("mailbox: nil document")
	}

	data, err := s.encode(doc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	backup, err := s.replace(data)
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.RecordMailboxWrite(string(doc.ProducerFormat))
	}
	s.logger.Debug("Mailbox document written",
		zap.String("document_id", doc.DocumentID),
		zap.String("format", string(doc.ProducerFormat)),
		zap.String("source", string(doc.Source)),
		zap.Bool("normalized", doc.Normalized),
		zap.String("backup", backup),
	)
	return nil
}

// AcceptInbound stores a producer payload received over the local listener.
// The payload is written verbatim and picked up by the normal read path.
func (s *Store) AcceptInbound(payload []byte) error {
	if !isObject(payload) {
		return &ReadError{Path: "inbound", Offset: syntaxOffset(payload), Err: errors.New("payload is not a JSON object")}
	}
	return s.Write(&types.MailboxDocument{
		ProducerFormat: types.FormatUnknown,
		Source:         types.SourceInbound,
		RawPayload:     append([]byte(nil), payload...),
	})
}

// WriteCache persists a synchronizer snapshot. Cache documents never trigger
// a handoff.
func (s *Store) WriteCache(user *types.CanonicalUser, tasks []types.CanonicalTask) error {
	if tasks == nil {
		tasks = []types.CanonicalTask{}
	}
	return s.Write(&types.MailboxDocument{
		ProducerFormat:   types.FormatCache,
		Source:           types.SourceCache,
		Normalized:       true,
		User:             user,
		Tasks:            tasks,
		ValidationPassed: true,
	})
}

func (s *Store) encode(doc *types.MailboxDocument) ([]byte, error) {
	if !doc.Normalized {
		if !isObject(doc.RawPayload) {
			return nil, errors.New("mailbox: raw payload must be a JSON object")
		}
		return doc.RawPayload, nil
	}

	if doc.DocumentID == "" {
		doc.DocumentID = id.NewDocumentID().String()
	}
	if doc.WrittenAt.IsZero() {
		doc.WrittenAt = s.now().UTC()
	}
	if doc.Tasks == nil {
		doc.Tasks = []types.CanonicalTask{}
	}

	data, err := api.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mailbox: encode document: %w", err)
	}
	return data, nil
}

// replace writes data to a temp file and swaps it in. The previous active
// file is first linked to its backup name so readers always find either the
// old or the new complete document.
func (s *Store) replace(data []byte) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("mailbox: create dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, s.name+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("mailbox: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return "", fmt.Errorf("mailbox: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return "", fmt.Errorf("mailbox: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", fmt.Errorf("mailbox: close temp file: %w", err)
	}

	active := s.Path()
	backup, err := s.preserve(active)
	if err != nil {
		cleanup()
		return "", err
	}

	if err := os.Rename(tmpName, active); err != nil {
		cleanup()
		return "", fmt.Errorf("mailbox: install document: %w", err)
	}
	return backup, nil
}

// preserve keeps the current active file under a fresh backup name
func (s *Store) preserve(active string) (string, error) {
	if _, err := os.Stat(active); errors.Is(err, fs.ErrNotExist) {
		return "", nil
	} else if err != nil {
		return "", fmt.Errorf("mailbox: stat active file: %w", err)
	}

	backup := s.nextBackupName()
	if err := os.Link(active, backup); err == nil {
		return backup, nil
	}

	// Filesystems without hard links: fall back to a rename, which leaves a
	// short window with no active file.
	if err := os.Rename(active, backup); err != nil {
		return "", fmt.Errorf("mailbox: preserve previous document: %w", err)
	}
	return backup, nil
}

func (s *Store) nextBackupName() string {
	epoch := s.now().Unix()
	for seq := 0; ; seq++ {
		candidate := filepath.Join(s.dir, paths.BackupName(s.name, epoch, seq))
		if _, err := os.Lstat(candidate); errors.Is(err, fs.ErrNotExist) {
			return candidate
		}
	}
}

// Read returns the active document, or nil when nothing has been written.
// A producer file that is not a canonical envelope is returned with
// Normalized unset and only RawPayload populated.
func (s *Store) Read() (*types.MailboxDocument, error) {
	path := s.Path()
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mailbox: read %s: %w", path, err)
	}

	data, err := toUTF8(raw)
	if err != nil {
		return nil, &ReadError{Path: path, Offset: -1, Err: err}
	}
	if !isObject(data) {
		return nil, &ReadError{Path: path, Offset: syntaxOffset(data), Err: errors.New("document is not a JSON object")}
	}

	var probe struct {
		Normalized     bool                 `json:"normalized"`
		ProducerFormat types.ProducerFormat `json:"producerFormat"`
	}
	if err := api.Unmarshal(data, &probe); err != nil {
		return nil, &ReadError{Path: path, Offset: syntaxOffset(data), Err: err}
	}

	if probe.Normalized && probe.ProducerFormat != "" {
		var doc types.MailboxDocument
		if err := api.Unmarshal(data, &doc); err != nil {
			return nil, &ReadError{Path: path, Offset: syntaxOffset(data), Err: err}
		}
		return &doc, nil
	}

	info, _ := os.Stat(path)
	doc := &types.MailboxDocument{
		ProducerFormat: types.FormatUnknown,
		Source:         types.SourceProducer,
		RawPayload:     data,
		Tasks:          []types.CanonicalTask{},
	}
	if info != nil {
		doc.WrittenAt = info.ModTime().UTC()
	}
	return doc, nil
}
