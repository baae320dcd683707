package normalize

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/clouddesk/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/clouddesk/internal/shared/types"
)

// decoder keeps numbers as json.Number so identifiers can be checked exactly
var decoder = sonic.Config{UseNumber: true, ValidateString: true}.Froze()

// Severity of a diagnostic
type Severity string

const (
	SeverityWarning Severity = "warning"
)

// Diagnostic is a non-fatal finding recorded during normalization
type Diagnostic struct {
	Severity Severity             `json:"severity"`
	Format   types.ProducerFormat `json:"format"`
	Code     string               `json:"code"`
	Message  string               `json:"message"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s %s/%s: %s", d.Severity, d.Format, d.Code, d.Message)
}

// Diagnostic codes
const (
	CodeCountMismatch   = "count_mismatch"
	CodeUnknownStatus   = "unknown_status"
	CodeUnknownPriority = "unknown_priority"
	CodeBadProgress     = "bad_progress"
	CodeDuplicateTask   = "duplicate_task"
)

// Result is the canonical form of one mailbox document
type Result struct {
	Format           types.ProducerFormat
	User             types.CanonicalUser
	Tasks            []types.CanonicalTask
	SelectedRole     *types.SelectedRole
	NeedsRemoteFetch bool
	// ValidationPassed is false when warnings were raised
	ValidationPassed bool
	Diagnostics      []Diagnostic
	Raw              []byte
}

func (r *Result) warn(code, format string, args ...interface{}) {
	r.Diagnostics = append(r.Diagnostics, Diagnostic{
		Severity: SeverityWarning,
		Format:   r.Format,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Document builds the mailbox envelope for a successful result
func (r *Result) Document(source types.DocumentSource) *types.MailboxDocument {
	user := r.User
	tasks := r.Tasks
	if tasks == nil {
		tasks = []types.CanonicalTask{}
	}

	diags := make([]string, 0, len(r.Diagnostics))
	for _, d := range r.Diagnostics {
		diags = append(diags, d.String())
	}

	return &types.MailboxDocument{
		ProducerFormat:   r.Format,
		Source:           source,
		Normalized:       true,
		RawPayload:       append([]byte(nil), r.Raw...),
		User:             &user,
		Tasks:            tasks,
		SelectedRole:     r.SelectedRole,
		NeedsRemoteFetch: r.NeedsRemoteFetch,
		ValidationPassed: r.ValidationPassed,
		Diagnostics:      diags,
	}
}

// Normalizer converts producer documents into the canonical model
type Normalizer struct {
	logger    *zap.Logger
	metrics   *monitoring.Metrics
	sanitizer *sanitizer
}

// New creates a normalizer. logger and metrics may be nil.
func New(logger *zap.Logger, metrics *monitoring.Metrics) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{
		logger:    logger,
		metrics:   metrics,
		sanitizer: newSanitizer(),
	}
}

// Normalize detects the producer schema of raw and converts it. On failure
// the returned Result still carries Raw (and Format when it was detected) so
// the caller can archive the payload.
func (n *Normalizer) Normalize(raw []byte) (res *Result, err error) {
	res = &Result{Format: types.FormatUnknown, Raw: raw}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("normalize %s: internal error: %v", res.Format, p)
			n.logger.Error("Normalizer panic recovered", zap.Any("panic", p))
		}
		if err != nil {
			n.recordFailure(res.Format, err)
		}
	}()

	var doc map[string]interface{}
	if err := decoder.Unmarshal(bytes.TrimSpace(raw), &doc); err != nil {
		return res, &MalformedError{Err: err}
	}
	if doc == nil {
		return res, &MalformedError{Err: errors.New("payload is not a JSON object")}
	}

	d, ok := detect(object(doc))
	if !ok {
		return res, unrecognized(object(doc))
	}

	res.Format = d.format
	if err := d.convert(n, object(doc), res); err != nil {
		return res, err
	}

	n.finish(res)
	return res, nil
}

// NormalizeDocument normalizes an un-normalized mailbox document and returns
// the envelope to write back. Already normalized documents are returned as is.
func (n *Normalizer) NormalizeDocument(doc *types.MailboxDocument) (*types.MailboxDocument, *Result, error) {
	if doc == nil {
		return nil, nil, errors.New("normalize: nil document")
	}
	if doc.Normalized {
		return doc, nil, nil
	}

	res, err := n.Normalize(doc.RawPayload)
	if err != nil {
		return nil, res, err
	}

	source := doc.Source
	if source == "" {
		source = types.SourceProducer
	}
	return res.Document(source), res, nil
}

func (n *Normalizer) finish(res *Result) {
	res.User.ID = n.sanitizer.clean(res.User.ID)
	res.User.Username = n.sanitizer.clean(res.User.Username)
	res.User.Role = n.sanitizer.clean(res.User.Role)
	res.User.AccountType = n.sanitizer.clean(res.User.AccountType)
	res.User.Normalize()

	seen := make(map[types.TaskID]int, len(res.Tasks))
	tasks := make([]types.CanonicalTask, 0, len(res.Tasks))
	for _, t := range res.Tasks {
		t.Name = n.sanitizer.clean(t.Name)
		t.Type = n.sanitizer.clean(t.Type)
		t.Phase = n.sanitizer.clean(t.Phase)
		t.RoleBinding = n.sanitizer.clean(t.RoleBinding)
		t.Description = n.sanitizer.clean(t.Description)
		t.SourceFormat = res.Format
		t.Normalize()

		if t.StatusFlagged {
			res.warn(CodeUnknownStatus, "task %s has unrecognized status %q", t.ID, t.Status)
		}
		if t.PriorityFlagged {
			res.warn(CodeUnknownPriority, "task %s has unrecognized priority %q", t.ID, t.Priority)
		}

		if i, dup := seen[t.ID]; dup {
			res.warn(CodeDuplicateTask, "task %s appears more than once; keeping the last entry", t.ID)
			tasks[i] = t
			continue
		}
		seen[t.ID] = len(tasks)
		tasks = append(tasks, t)
	}
	res.Tasks = tasks
	res.ValidationPassed = len(res.Diagnostics) == 0

	for _, d := range res.Diagnostics {
		n.logger.Warn("Normalization warning",
			zap.String("format", string(d.Format)),
			zap.String("code", d.Code),
			zap.String("detail", d.Message),
		)
	}
	n.logger.Debug("Document normalized",
		zap.String("format", string(res.Format)),
		zap.String("username", res.User.Username),
		zap.Int("tasks", len(res.Tasks)),
		zap.Bool("needs_remote_fetch", res.NeedsRemoteFetch),
	)
}

func (n *Normalizer) recordFailure(format types.ProducerFormat, err error) {
	reason := "validation"
	var unrec *UnrecognizedSchemaError
	var malformed *MalformedError
	switch {
	case errors.As(err, &unrec):
		reason = "unrecognized"
	case errors.As(err, &malformed):
		reason = "malformed"
	}
	if n.metrics != nil {
		n.metrics.RecordNormalizeError(reason)
	}
	n.logger.Warn("Normalization failed",
		zap.String("format", string(format)),
		zap.String("reason", reason),
		zap.Error(err),
	)
}

func unrecognized(doc object) *UnrecognizedSchemaError {
	var missing []string
	action := strings.ToLower(doc.str("action"))
	for _, d := range detectors {
		if d.action != "" && d.action == action {
			for _, k := range d.required {
				if !doc.has(k) {
					missing = append(missing, k)
				}
			}
		}
	}
	if len(missing) == 0 {
		if action == "" {
			missing = append(missing, "action")
		}
		missing = append(missing, "tasks")
	}
	return &UnrecognizedSchemaError{PresentKeys: doc.keys(), Missing: missing}
}
