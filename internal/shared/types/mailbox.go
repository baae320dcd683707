package types

import (
	"encoding/json"
	"strings"
	"time"
)

// ProducerFormat names the producer schema a mailbox document arrived in
type ProducerFormat string

const (
	FormatTaskDeployment ProducerFormat = "TaskDeployment"
	FormatUserDataSync   ProducerFormat = "UserDataSync"
	FormatRoleSelection  ProducerFormat = "RoleSelection"
	FormatLegacy         ProducerFormat = "Legacy"
	FormatCache          ProducerFormat = "Cache"
	FormatUnknown        ProducerFormat = "Unknown"
)

// DocumentSource tells who wrote the active mailbox file
type DocumentSource string

const (
	SourceProducer DocumentSource = "producer"
	SourceInbound  DocumentSource = "inbound"
	SourceCache    DocumentSource = "cache"
)

// PlaceholderUsername is shown when a producer omits the operator name
const PlaceholderUsername = "unknown_user"

// Credentials authenticate the operator against the remote task API
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// Valid reports whether the credentials can be used for a login attempt
func (c *Credentials) Valid() bool {
	return c != nil && c.Username != "" && c.Password != ""
}

// CanonicalUser is the operator whose tasks are displayed
type CanonicalUser struct {
	ID          string       `json:"id"`
	Username    string       `json:"username"`
	Role        string       `json:"role"`
	AccountType string       `json:"accountType"`
	Credentials *Credentials `json:"credentialsForApi,omitempty"`
}

// Normalize enforces the user invariants in place
func (u *CanonicalUser) Normalize() {
	if strings.TrimSpace(u.Username) == "" {
		u.Username = PlaceholderUsername
	}
}

// SelectedRole is the role picked in the browser session
type SelectedRole struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// MailboxDocument is the versioned envelope stored in the mailbox.
// Raw producer files read back before normalization have Normalized unset
// and only RawPayload populated.
type MailboxDocument struct {
	DocumentID       string          `json:"documentId,omitempty"`
	ProducerFormat   ProducerFormat  `json:"producerFormat"`
	Source           DocumentSource  `json:"source,omitempty"`
	Normalized       bool            `json:"normalized"`
	RawPayload       json.RawMessage `json:"rawPayload"`
	User             *CanonicalUser  `json:"canonicalUser,omitempty"`
	Tasks            []CanonicalTask `json:"canonicalTasks"`
	SelectedRole     *SelectedRole   `json:"selectedRole,omitempty"`
	NeedsRemoteFetch bool            `json:"needsRemoteFetch"`
	ValidationPassed bool            `json:"validationPassed"`
	Diagnostics      []string        `json:"diagnostics,omitempty"`
	WrittenAt        time.Time       `json:"writtenAt"`
}

// TriggersHandoff reports whether the document asks the launcher to move
// from the browser to the desktop session
func (d *MailboxDocument) TriggersHandoff() bool {
	if d == nil || !d.Normalized || d.Source == SourceCache {
		return false
	}
	switch d.ProducerFormat {
	case FormatRoleSelection, FormatTaskDeployment, FormatUserDataSync:
		return true
	}
	return false
}
