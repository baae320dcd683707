package mailbox

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/clouddesk/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/clouddesk/internal/shared/types"
)

func newTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	if opts.Dir == "" {
		opts.Dir = t.TempDir()
	}
	store, err := New(opts)
	require.NoError(t, err)
	return store
}

func canonicalDoc() *types.MailboxDocument {
	assigned := time.Date(2025, 1, 2, 9, 30, 0, 0, time.UTC)
	return &types.MailboxDocument{
		ProducerFormat:   types.FormatTaskDeployment,
		Source:           types.SourceProducer,
		Normalized:       true,
		RawPayload:       json.RawMessage(`{"action":"task_deployment"}`),
		User:             &types.CanonicalUser{ID: "1", Username: "alice", Role: "operator"},
		ValidationPassed: true,
		Tasks: []types.CanonicalTask{{
			ID:              "7",
			Name:            "Patch core switch",
			Status:          types.StatusPending,
			Priority:        types.PriorityHigh,
			ProgressPercent: 40,
			AssignedAt:      &assigned,
			SourceFormat:    types.FormatTaskDeployment,
		}},
	}
}

func TestReadMissingReturnsNil(t *testing.T) {
	store := newTestStore(t, Options{})

	doc, err := store.Read()
	assert.NoError(t, err)
	assert.Nil(t, doc)
}

func TestWriteReadRoundTrip(t *testing.T) {
	store := newTestStore(t, Options{})
	doc := canonicalDoc()

	require.NoError(t, store.Write(doc))
	assert.NotEmpty(t, doc.DocumentID)
	assert.False(t, doc.WrittenAt.IsZero())

	got, err := store.Read()
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, doc.DocumentID, got.DocumentID)
	assert.Equal(t, doc.ProducerFormat, got.ProducerFormat)
	assert.True(t, doc.WrittenAt.Equal(got.WrittenAt))
	assert.Equal(t, doc.User, got.User)
	assert.JSONEq(t, string(doc.RawPayload), string(got.RawPayload))
	require.Len(t, got.Tasks, 1)
	assert.Equal(t, doc.Tasks[0].ID, got.Tasks[0].ID)
	assert.Equal(t, doc.Tasks[0].Status, got.Tasks[0].Status)
	assert.True(t, doc.Tasks[0].AssignedAt.Equal(*got.Tasks[0].AssignedAt))
}

func TestWriteKeepsPreviousAsBackup(t *testing.T) {
	store := newTestStore(t, Options{})
	fixed := time.Unix(1735689600, 0)
	store.now = func() time.Time { return fixed }

	first := []byte(`{"action":"user_data_sync","n":1}`)
	require.NoError(t, os.WriteFile(store.Path(), first, 0o644))

	require.NoError(t, store.Write(canonicalDoc()))
	require.NoError(t, store.Write(canonicalDoc()))

	backups, err := store.Backups()
	require.NoError(t, err)
	require.Len(t, backups, 2)

	// Same second: the second backup gets a sequence suffix and sorts first
	assert.Equal(t, "task_data.json.notified_1735689600.1", filepath.Base(backups[0].Path))
	assert.Equal(t, "task_data.json.notified_1735689600", filepath.Base(backups[1].Path))

	oldest, err := os.ReadFile(backups[1].Path)
	require.NoError(t, err)
	assert.Equal(t, first, oldest)
}

func TestReadRawProducerFile(t *testing.T) {
	store := newTestStore(t, Options{})
	payload := []byte(`{"action":"role_selection","user":{"id":1,"username":"alice"}}`)
	require.NoError(t, os.WriteFile(store.Path(), payload, 0o644))

	doc, err := store.Read()
	require.NoError(t, err)
	require.NotNil(t, doc)

	assert.False(t, doc.Normalized)
	assert.Equal(t, types.SourceProducer, doc.Source)
	assert.Equal(t, string(payload), string(doc.RawPayload))
	assert.False(t, doc.TriggersHandoff())
}

func TestReadMalformed(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"truncated", `{"action":"task_deployment",`},
		{"array", `[1,2,3]`},
		{"empty", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t, Options{})
			require.NoError(t, os.WriteFile(store.Path(), []byte(tt.content), 0o644))

			doc, err := store.Read()
			assert.Nil(t, doc)

			var readErr *ReadError
			require.True(t, errors.As(err, &readErr), "got %v", err)
			assert.Equal(t, store.Path(), readErr.Path)
		})
	}
}

func TestReadReportsOffset(t *testing.T) {
	store := newTestStore(t, Options{})
	require.NoError(t, os.WriteFile(store.Path(), []byte(`{"a": 1,, "b": 2}`), 0o644))

	_, err := store.Read()
	var readErr *ReadError
	require.ErrorAs(t, err, &readErr)
	assert.Greater(t, readErr.Offset, int64(0))
}

func TestReadTranscodesLegacyEncoding(t *testing.T) {
	store := newTestStore(t, Options{})

	// Latin-1 bytes for a producer that never learned UTF-8
	content := []byte("{\"action\":\"legacy\",\"tasks\":[{\"name\":\"R\xe9seau du caf\xe9, v\xe9rification des c\xe2bles et du mat\xe9riel\"}]}")
	require.False(t, utf8.Valid(content))
	require.NoError(t, os.WriteFile(store.Path(), content, 0o644))

	doc, err := store.Read()
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.True(t, utf8.Valid(doc.RawPayload))
	assert.True(t, json.Valid(doc.RawPayload))
}

func TestAcceptInbound(t *testing.T) {
	store := newTestStore(t, Options{})

	err := store.AcceptInbound([]byte(`not json`))
	var readErr *ReadError
	assert.ErrorAs(t, err, &readErr)

	payload := []byte(`{"action":"user_data_sync","syncInfo":{},"users":[],"syncSummary":{}}`)
	require.NoError(t, store.AcceptInbound(payload))

	doc, err := store.Read()
	require.NoError(t, err)
	assert.False(t, doc.Normalized)
	assert.Equal(t, string(payload), string(doc.RawPayload))
}

func TestWriteCacheNeverTriggersHandoff(t *testing.T) {
	store := newTestStore(t, Options{})

	user := &types.CanonicalUser{Username: "alice"}
	require.NoError(t, store.WriteCache(user, nil))

	doc, err := store.Read()
	require.NoError(t, err)
	assert.True(t, doc.Normalized)
	assert.Equal(t, types.SourceCache, doc.Source)
	assert.Equal(t, types.FormatCache, doc.ProducerFormat)
	assert.NotNil(t, doc.Tasks)
	assert.False(t, doc.TriggersHandoff())
}

func TestWriteRejectsBadRawPayload(t *testing.T) {
	store := newTestStore(t, Options{})

	err := store.Write(&types.MailboxDocument{RawPayload: json.RawMessage(`[]`)})
	assert.Error(t, err)

	doc, err := store.Read()
	assert.NoError(t, err)
	assert.Nil(t, doc, "failed write must not leave a document behind")
}

func TestPurge(t *testing.T) {
	metrics := monitoring.NewMetrics()
	store := newTestStore(t, Options{Metrics: metrics})

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Write(canonicalDoc()))
	}
	backups, err := store.Backups()
	require.NoError(t, err)
	require.Len(t, backups, 2)

	require.NoError(t, store.Purge())

	doc, err := store.Read()
	assert.NoError(t, err)
	assert.Nil(t, doc)

	backups, err = store.Backups()
	require.NoError(t, err)
	assert.Empty(t, backups)

	// Purging an empty mailbox is fine
	assert.NoError(t, store.Purge())
}

func TestPurgeArchivesBackups(t *testing.T) {
	store := newTestStore(t, Options{ArchiveOnPurge: true})

	require.NoError(t, os.WriteFile(store.Path(), []byte(`{"raw":true}`), 0o644))
	require.NoError(t, store.Write(canonicalDoc()))
	require.NoError(t, store.Write(canonicalDoc()))

	require.NoError(t, store.Purge())

	archives, err := store.ArchivePaths()
	require.NoError(t, err)
	require.Len(t, archives, 1)

	f, err := os.Open(archives[0])
	require.NoError(t, err)
	defer f.Close()

	dec, err := zstd.NewReader(f)
	require.NoError(t, err)
	defer dec.Close()

	var lines []archiveLine
	scanner := bufio.NewScanner(dec)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		var line archiveLine
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		lines = append(lines, line)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, lines, 2)

	// Oldest first: the raw producer file
	first, err := json.Marshal(lines[0].Payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"raw":true}`, string(first))
}

func TestArchiveStoresInvalidPayloadAsString(t *testing.T) {
	store := newTestStore(t, Options{})
	backup := filepath.Join(store.Dir(), "task_data.json.notified_100")
	require.NoError(t, os.WriteFile(backup, []byte("garbage{"), 0o644))

	var buf bytes.Buffer
	n, err := store.Archive(&buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	dec, err := zstd.NewReader(&buf)
	require.NoError(t, err)
	defer dec.Close()

	var line archiveLine
	require.NoError(t, json.NewDecoder(dec).Decode(&line))
	assert.Equal(t, "garbage{", line.Payload)
}

func TestWatchDebouncesBursts(t *testing.T) {
	store := newTestStore(t, Options{Debounce: 500 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	require.NoError(t, store.Watch(ctx, func() { calls.Add(1) }))

	// Two writes well inside the debounce window
	require.NoError(t, os.WriteFile(store.Path(), []byte(`{"n":1}`), 0o644))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, store.Write(canonicalDoc()))

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
	time.Sleep(800 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	// A later, separate write is reported again
	require.NoError(t, store.Write(canonicalDoc()))
	require.Eventually(t, func() bool { return calls.Load() == 2 }, 3*time.Second, 50*time.Millisecond)
}

func TestWatchIgnoresOtherFiles(t *testing.T) {
	store := newTestStore(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	require.NoError(t, store.Watch(ctx, func() { calls.Add(1) }))

	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "notes.txt"), []byte("x"), 0o644))
	time.Sleep(900 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestWatchStopsOnCancel(t *testing.T) {
	store := newTestStore(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int32
	require.NoError(t, store.Watch(ctx, func() { calls.Add(1) }))
	cancel()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, store.Write(canonicalDoc()))
	time.Sleep(900 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestNewRejectsNestedFileName(t *testing.T) {
	_, err := New(Options{Dir: t.TempDir(), File: "sub/task.json"})
	assert.Error(t, err)
}

func TestRestoreReinstatesNewestBackup(t *testing.T) {
	store := newTestStore(t, Options{})

	_, err := store.Restore()
	assert.ErrorIs(t, err, ErrNoBackup)

	raw := []byte(`{"action":"role_selection","user":{"id":1,"username":"alice"},"selectedRole":{"value":"net_eng"}}`)
	require.NoError(t, os.WriteFile(store.Path(), raw, 0o644))
	require.NoError(t, store.Write(canonicalDoc()))

	restored, err := store.Restore()
	require.NoError(t, err)
	assert.Contains(t, filepath.Base(restored.Path), ".notified_")

	active, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Equal(t, raw, active)

	// the envelope that was displaced is now a backup too
	backups, err := store.Backups()
	require.NoError(t, err)
	assert.Len(t, backups, 2)
}

func TestArchiveBackupsKeepsFiles(t *testing.T) {
	store := newTestStore(t, Options{})

	path, err := store.ArchiveBackups()
	require.NoError(t, err)
	assert.Empty(t, path)

	require.NoError(t, os.WriteFile(store.Path(), []byte(`{"raw":true}`), 0o644))
	require.NoError(t, store.Write(canonicalDoc()))

	path, err = store.ArchiveBackups()
	require.NoError(t, err)
	assert.FileExists(t, path)

	backups, err := store.Backups()
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}
