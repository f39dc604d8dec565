package config

import (
	"fmt"
	"strings"
)

// ValidationError is a single invalid setting.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects every invalid setting found by Validate.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

var validLevels = []string{"debug", "info", "warn", "warning", "error"}

// Validate returns every violation, or nil.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors

	if strings.TrimSpace(c.DataDir) == "" {
		errs = append(errs, ValidationError{Field: "data_dir", Value: c.DataDir, Message: "must not be empty"})
	}
	if c.Lock.Timeout <= 0 {
		errs = append(errs, ValidationError{Field: "lock.timeout", Value: c.Lock.Timeout, Message: "must be positive"})
	}
	if c.Session.Expiry <= 0 {
		errs = append(errs, ValidationError{Field: "session.expiry", Value: c.Session.Expiry, Message: "must be positive"})
	}
	if c.Events.Buffer <= 0 {
		errs = append(errs, ValidationError{Field: "events.buffer", Value: c.Events.Buffer, Message: "must be positive"})
	}
	if c.Sweep.Interval <= 0 {
		errs = append(errs, ValidationError{Field: "sweep.interval", Value: c.Sweep.Interval, Message: "must be positive"})
	}

	level := strings.ToLower(c.Log.Level)
	found := false
	for _, l := range validLevels {
		if l == level {
			found = true
			break
		}
	}
	if !found {
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Value:   c.Log.Level,
			Message: fmt.Sprintf("must be one of %v", validLevels[:4]),
		})
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}
