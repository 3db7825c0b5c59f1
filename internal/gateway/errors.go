package gateway

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/existflow/ironsync/internal/model"
	"github.com/existflow/ironsync/internal/remote"
)

// ErrClosed is returned when a mutation starts after the store was torn down
var ErrClosed = errors.New("gateway: store closed")

// ValidationError rejects input before any network call
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// MutationError is a failed remote write. Err is usually a *remote.Error.
type MutationError struct {
	Op  string
	Err error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *MutationError) Unwrap() error {
	return e.Err
}

// Message is the text to show the user
func (e *MutationError) Message() string {
	var re *remote.Error
	if errors.As(e.Err, &re) {
		return re.Message
	}
	return e.Err.Error()
}

// Code is the backend's machine-readable code, if any
func (e *MutationError) Code() string {
	var re *remote.Error
	if errors.As(e.Err, &re) {
		return re.Code
	}
	return ""
}

var ruleMessages = map[string]string{
	"required":          "is required",
	"min":               "must not be empty",
	"max":               "is too long",
	"project_status":    "must be one of Planning, In Progress, Review, Completed",
	"task_status":       "must be one of To Do, In Progress, Review, Completed",
	"task_priority":     "must be one of low, medium, high, urgent",
	"isodate":           "must be a YYYY-MM-DD date",
	"notification_type": "is not a known notification type",
}

// validate runs the struct rules on v and reports the first failing field,
// in field name order so the result is stable
func validate(v interface{}) error {
	err := model.Validate(v)
	if err == nil {
		return nil
	}
	fields := model.FieldErrors(err)
	if len(fields) == 0 {
		return &ValidationError{Field: "input", Message: err.Error()}
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	rule := fields[names[0]]
	msg, ok := ruleMessages[rule]
	if !ok {
		msg = "failed " + rule
	}
	return &ValidationError{Field: names[0], Message: msg}
}

func trimmed(o model.Opt[string]) model.Opt[string] {
	if o.Set {
		o.Value = strings.TrimSpace(o.Value)
	}
	return o
}
