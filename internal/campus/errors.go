package campus

import "fmt"

// ValidationError reports invalid input detected before any request is sent.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func required(field, value string) error {
	if value == "" {
		return &ValidationError{Field: field, Reason: "is required"}
	}
	return nil
}

// validID rejects identifiers that would not address a single resource.
func validID(field, id string) error {
	switch id {
	case "":
		return &ValidationError{Field: field, Reason: "is required"}
	case ".", "..":
		return &ValidationError{Field: field, Reason: "is not a valid identifier"}
	}
	return nil
}
