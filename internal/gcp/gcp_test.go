package gcp

import "testing"

func TestParseGCSURI(t *testing.T) {
	tests := []struct {
		uri            string
		bucket, object string
		wantErr        bool
	}{
		{"gs://handoff/batch-1/diagnostico_rangos.json", "handoff", "batch-1/diagnostico_rangos.json", false},
		{"gs://b/o", "b", "o", false},
		{"gs://bucket-only", "", "", true},
		{"gs:///object", "", "", true},
		{"https://storage.googleapis.com/b/o", "", "", true},
	}
	for _, tt := range tests {
		b, o, err := ParseGCSURI(tt.uri)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseGCSURI(%q) err = %v, wantErr %v", tt.uri, err, tt.wantErr)
			continue
		}
		if b != tt.bucket || o != tt.object {
			t.Errorf("ParseGCSURI(%q) = %q, %q", tt.uri, b, o)
		}
	}
	if got := GCSURI("b", "x/y.pdf"); got != "gs://b/x/y.pdf" {
		t.Errorf("GCSURI = %q", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("WORKERS_OK", "8")
	t.Setenv("WORKERS_BAD", "many")
	t.Setenv("WORKERS_ZERO", "0")
	tests := map[string]int{"WORKERS_OK": 8, "WORKERS_BAD": 4, "WORKERS_ZERO": 4, "WORKERS_UNSET": 4}
	for key, want := range tests {
		if got := GetEnvInt(key, 4); got != want {
			t.Errorf("GetEnvInt(%s) = %d, want %d", key, got, want)
		}
	}
	t.Setenv("FAMILY", "")
	if got := GetEnv("FAMILY", "contratos"); got != "" {
		t.Errorf("GetEnv returned fallback for a set-but-empty variable: %q", got)
	}
}
