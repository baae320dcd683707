// Package id provides prefixed ULID generation for mailbox documents,
// handoff transitions, supervised processes and inbound requests.
//
// ULIDs sort by creation time, so backup files and log lines carrying a
// document ID can be ordered without a separate timestamp. The prefix makes
// the ID kind obvious when reading logs (doc_*, hnd_*, proc_*, req_*).
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// DocumentID identifies one normalized mailbox document
type DocumentID string

// HandoffID identifies a single screen-ownership transition
type HandoffID string

// ProcessID identifies a supervised child process independent of its OS pid
type ProcessID string

// RequestID identifies an inbound or outbound HTTP request
type RequestID string

// SyncID identifies one Task Synchronizer refresh cycle
type SyncID string

const (
	DocumentPrefix = "doc"
	HandoffPrefix  = "hnd"
	ProcessPrefix  = "proc"
	RequestPrefix  = "req"
	SyncPrefix     = "sync"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand
func NewGenerator() *Generator {
	return &Generator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Tests use it for deterministic output.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// NewDocumentID generates a mailbox document ID
func NewDocumentID() DocumentID {
	return DocumentID(Default().GenerateWithPrefix(DocumentPrefix))
}

// NewHandoffID generates a handoff transition ID
func NewHandoffID() HandoffID {
	return HandoffID(Default().GenerateWithPrefix(HandoffPrefix))
}

// NewProcessID generates a supervised process ID
func NewProcessID() ProcessID {
	return ProcessID(Default().GenerateWithPrefix(ProcessPrefix))
}

// NewRequestID generates a request ID
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

// NewSyncID generates a refresh cycle ID
func NewSyncID() SyncID {
	return SyncID(Default().GenerateWithPrefix(SyncPrefix))
}

func (id DocumentID) String() string { return string(id) }
func (id HandoffID) String() string  { return string(id) }
func (id ProcessID) String() string  { return string(id) }
func (id RequestID) String() string  { return string(id) }
func (id SyncID) String() string     { return string(id) }

// IsValid checks if a string is a bare ULID
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}

// Parse parses a bare or prefixed ULID string
func Parse(id string) (ulid.ULID, error) {
	if i := strings.LastIndexByte(id, '_'); i >= 0 {
		id = id[i+1:]
	}
	return ulid.Parse(id)
}

// Timestamp extracts the creation time from a bare or prefixed ULID
func Timestamp(id string) (time.Time, error) {
	parsed, err := Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
