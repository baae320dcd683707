package normalize

import (
	"fmt"
	"strings"

	"github.com/GriffinCanCode/clouddesk/internal/shared/types"
)

// ValidationError reports a recognized document that breaks its schema.
// Index is -1 for singleton objects.
type ValidationError struct {
	Format types.ProducerFormat
	Object string
	Index  int
	Key    string
	Reason string
}

func (e *ValidationError) Error() string {
	where := e.Object
	if e.Index >= 0 {
		where = fmt.Sprintf("%s[%d]", e.Object, e.Index)
	}
	return fmt.Sprintf("%s: %s: key %q %s", e.Format, where, e.Key, e.Reason)
}

// UnrecognizedSchemaError reports a document no detector accepted
type UnrecognizedSchemaError struct {
	PresentKeys []string
	Missing     []string
}

func (e *UnrecognizedSchemaError) Error() string {
	present := "none"
	if len(e.PresentKeys) > 0 {
		present = strings.Join(e.PresentKeys, ", ")
	}
	return fmt.Sprintf("unrecognized mailbox schema: present keys [%s], expected [%s]",
		present, strings.Join(e.Missing, ", "))
}

// MalformedError wraps a payload that is not a JSON object at all
type MalformedError struct {
	Err error
}

func (e *MalformedError) Error() string {
	return "malformed mailbox payload: " + e.Err.Error()
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}

func missingKey(format types.ProducerFormat, object string, index int, key string) *ValidationError {
	return &ValidationError{Format: format, Object: object, Index: index, Key: key, Reason: "is required"}
}

func notNumeric(format types.ProducerFormat, object string, index int, key string) *ValidationError {
	return &ValidationError{Format: format, Object: object, Index: index, Key: key, Reason: "must be numeric"}
}
