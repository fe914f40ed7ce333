package config

import (
	"errors"
	"strings"
	"testing"
)

func TestParseConfig_RejectsUnknownKeys(t *testing.T) {
	tests := []struct {
		name  string
		input string
		field string
	}{
		{
			name:  "misspelt top-level key",
			input: strings.Replace(sampleYAML, "algorithms:", "algorithm:", 1),
			field: "",
		},
		{
			name:  "misspelt service key",
			input: strings.Replace(sampleYAML, "    start: service nginx start\n    stop: service nginx stop\n  - name: quic", "    strat: service nginx start\n    stop: service nginx stop\n  - name: quic", 1),
			field: "services[0]",
		},
		{
			name:  "wrong type",
			input: strings.Replace(sampleYAML, "requests: 2000", "requests: lots", 1),
			field: "loads[0].requests",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.input), "sweep.yaml")
			if err == nil {
				t.Fatal("ParseConfig() should reject the document")
			}

			var verrs *ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("error = %T, want *ValidationErrors", err)
			}
			found := false
			for _, e := range verrs.Errors {
				if e.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("no error reported on field %q: %v", tt.field, err)
			}
		})
	}
}

func TestParseConfig_AcceptsSample(t *testing.T) {
	if _, err := ParseConfig([]byte(sampleYAML), "sweep.yaml"); err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}
}

func TestParseConfig_JSONUnknownKey(t *testing.T) {
	_, err := ParseConfig([]byte(`{"name": "x", "retries": 3}`), "sweep.json")
	if err == nil {
		t.Fatal("ParseConfig() should reject unknown key")
	}
}

func TestFieldName(t *testing.T) {
	tests := map[string]string{
		"":                   "",
		"/":                  "",
		"/name":              "name",
		"/services/0/name":   "services[0].name",
		"/package/bucket":    "package.bucket",
		"/loads/12/requests": "loads[12].requests",
	}
	for in, want := range tests {
		if got := fieldName(in); got != want {
			t.Errorf("fieldName(%q) = %q, want %q", in, got, want)
		}
	}
}
