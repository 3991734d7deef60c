package events

import (
	"encoding/json"
	"testing"

	"github.com/campus-fest/backend/pkg/response"
)

func mustFields(t *testing.T, config string) []FormField {
	t.Helper()
	fields, err := ParseFormConfig(json.RawMessage(config))
	if err != nil {
		t.Fatalf("ParseFormConfig: %v", err)
	}
	return fields
}

func TestParseFormConfig(t *testing.T) {
	fields := mustFields(t, `[
		{"id":"college","label":"College","type":"text","required":true},
		{"id":"size","label":"T-shirt size","type":"select","required":true,"options":["S","M","L"]},
		{"id":"topics","label":"Topics","type":"multiselect","options":["ml","web","iot"]},
		{"id":"resume","label":"Resume","type":"file"}
	]`)
	if len(fields) != 4 {
		t.Fatalf("expected 4 fields, got %d", len(fields))
	}

	bad := []string{
		`[{"label":"no id","type":"text"}]`,
		`[{"id":"a","type":"text"},{"id":"a","type":"text"}]`,
		`[{"id":"a","type":"dropdown"}]`,
		`[{"id":"a","type":"select"}]`,
		`{"not":"a list"}`,
	}
	for _, config := range bad {
		if _, err := ParseFormConfig(json.RawMessage(config)); err == nil {
			t.Fatalf("expected rejection for %s", config)
		}
	}
}

func TestValidateAnswers(t *testing.T) {
	fields := mustFields(t, `[
		{"id":"college","type":"text","required":true},
		{"id":"size","type":"select","required":true,"options":["S","M","L"]},
		{"id":"topics","type":"multiselect","options":["ml","web"]}
	]`)

	ok := `{"college":"NIT","size":"M","topics":["ml"]}`
	if err := ValidateAnswers(fields, json.RawMessage(ok)); err != nil {
		t.Fatalf("valid answers rejected: %v", err)
	}
	if err := ValidateAnswers(fields, json.RawMessage(`{"college":"NIT","size":"S"}`)); err != nil {
		t.Fatalf("optional field may be omitted: %v", err)
	}

	bad := []string{
		`{"size":"M"}`,                                 // required text missing
		`{"college":"","size":"M"}`,                    // required text empty
		`{"college":"NIT","size":"XXL"}`,               // not an option
		`{"college":"NIT","size":"M","topics":"ml"}`,   // multiselect not a list
		`{"college":"NIT","size":"M","topics":["ai"]}`, // unknown option
		`{"college":"NIT","size":"M","extra":"x"}`,     // unknown field
	}
	for _, answers := range bad {
		err := ValidateAnswers(fields, json.RawMessage(answers))
		if err == nil {
			t.Fatalf("expected rejection for %s", answers)
		}
		if _, isRej := response.AsRejection(err); !isRej {
			t.Fatalf("expected a structured rejection for %s, got %v", answers, err)
		}
	}
}

func TestValidateAnswersNoForm(t *testing.T) {
	if err := ValidateAnswers(nil, nil); err != nil {
		t.Fatalf("no form, no answers should pass: %v", err)
	}
	if err := ValidateAnswers(nil, json.RawMessage(`{"any":"thing"}`)); err == nil {
		t.Fatal("answers without a form should be rejected")
	}
}
