package events

import (
	"encoding/json"
	"fmt"

	"github.com/campus-fest/backend/pkg/response"
)

// FieldType tags one registration form field kind.
type FieldType string

const (
	FieldText        FieldType = "text"
	FieldTextarea    FieldType = "textarea"
	FieldSelect      FieldType = "select"
	FieldMultiSelect FieldType = "multiselect"
	FieldFile        FieldType = "file" // stores an uploaded-file reference
)

// FormField is one organizer-defined registration form field.
type FormField struct {
	ID       string    `json:"id"`
	Label    string    `json:"label"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
	Options  []string  `json:"options,omitempty"` // select/multiselect only
}

// ParseFormConfig decodes and validates a form definition.
func ParseFormConfig(raw json.RawMessage) ([]FormField, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var fields []FormField
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, response.NewRejection(response.KindValidation, "invalid_request", "malformed form config")
	}
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f.ID == "" {
			return nil, response.NewRejection(response.KindValidation, "invalid_request", "form field missing id")
		}
		if seen[f.ID] {
			return nil, response.NewRejection(response.KindValidation, "invalid_request", fmt.Sprintf("duplicate form field %q", f.ID))
		}
		seen[f.ID] = true
		switch f.Type {
		case FieldText, FieldTextarea, FieldFile:
			// no options allowed
		case FieldSelect, FieldMultiSelect:
			if len(f.Options) == 0 {
				return nil, response.NewRejection(response.KindValidation, "invalid_request", fmt.Sprintf("field %q needs options", f.ID))
			}
		default:
			return nil, response.NewRejection(response.KindValidation, "invalid_request", fmt.Sprintf("field %q has unknown type %q", f.ID, f.Type))
		}
	}
	return fields, nil
}

// ValidateAnswers checks submitted answers against the form definition:
// required fields present and non-empty, select answers drawn from the
// declared options. Unknown answer keys are rejected.
func ValidateAnswers(fields []FormField, raw json.RawMessage) error {
	var answers map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &answers); err != nil {
			return response.NewRejection(response.KindValidation, "invalid_request", "malformed form answers")
		}
	}

	byID := make(map[string]FormField, len(fields))
	for _, f := range fields {
		byID[f.ID] = f
	}
	for key := range answers {
		if _, ok := byID[key]; !ok {
			return response.NewRejection(response.KindValidation, "invalid_request", fmt.Sprintf("unknown form field %q", key))
		}
	}

	for _, f := range fields {
		value, present := answers[f.ID]
		if !present || value == nil {
			if f.Required {
				return response.NewRejection(response.KindValidation, "invalid_request", fmt.Sprintf("field %q is required", f.ID))
			}
			continue
		}
		switch f.Type {
		case FieldText, FieldTextarea, FieldFile:
			s, ok := value.(string)
			if !ok {
				return response.NewRejection(response.KindValidation, "invalid_request", fmt.Sprintf("field %q must be a string", f.ID))
			}
			if f.Required && s == "" {
				return response.NewRejection(response.KindValidation, "invalid_request", fmt.Sprintf("field %q is required", f.ID))
			}
		case FieldSelect:
			s, ok := value.(string)
			if !ok || !contains(f.Options, s) {
				return response.NewRejection(response.KindValidation, "invalid_request", fmt.Sprintf("field %q must be one of its options", f.ID))
			}
		case FieldMultiSelect:
			items, ok := value.([]any)
			if !ok {
				return response.NewRejection(response.KindValidation, "invalid_request", fmt.Sprintf("field %q must be a list", f.ID))
			}
			if f.Required && len(items) == 0 {
				return response.NewRejection(response.KindValidation, "invalid_request", fmt.Sprintf("field %q is required", f.ID))
			}
			for _, item := range items {
				s, ok := item.(string)
				if !ok || !contains(f.Options, s) {
					return response.NewRejection(response.KindValidation, "invalid_request", fmt.Sprintf("field %q contains an invalid option", f.ID))
				}
			}
		}
	}
	return nil
}

func contains(options []string, v string) bool {
	for _, o := range options {
		if o == v {
			return true
		}
	}
	return false
}
