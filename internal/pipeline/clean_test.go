package pipeline

import "testing"

func TestCleanModelJSON(t *testing.T) {
	want := `{"merchant_name": "Cafe X"}`

	tests := []struct {
		name string
		raw  string
	}{
		{"bare object", `{"merchant_name": "Cafe X"}`},
		{"json fence", "```json\n{\"merchant_name\": \"Cafe X\"}\n```"},
		{"plain fence", "```\n{\"merchant_name\": \"Cafe X\"}\n```"},
		{"surrounding prose", "Here is the extracted data:\n{\"merchant_name\": \"Cafe X\"}\nLet me know if you need more."},
		{"leading whitespace", "   \n\t{\"merchant_name\": \"Cafe X\"}   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CleanModelJSON(tt.raw)
			if err != nil {
				t.Fatalf("CleanModelJSON failed: %v", err)
			}
			if got != want {
				t.Errorf("CleanModelJSON = %q, want %q", got, want)
			}
		})
	}
}

func TestCleanModelJSONNested(t *testing.T) {
	raw := "```json\n{\"items\": [{\"name\": \"Coffee\"}]}\n```"

	got, err := CleanModelJSON(raw)
	if err != nil {
		t.Fatalf("CleanModelJSON failed: %v", err)
	}
	if got != `{"items": [{"name": "Coffee"}]}` {
		t.Errorf("Unexpected result: %q", got)
	}
}

func TestCleanModelJSONNoObject(t *testing.T) {
	for _, raw := range []string{
		"I could not read the receipt, sorry.",
		"",
		"```json\n```",
		"}{",
	} {
		if _, err := CleanModelJSON(raw); err == nil {
			t.Errorf("Expected error for %q, got nil", raw)
		}
	}
}
