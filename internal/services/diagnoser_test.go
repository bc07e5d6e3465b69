package services

import (
	"reflect"
	"testing"
)

func TestBatchPrefix(t *testing.T) {
	tests := []struct {
		object string
		want   string
		ok     bool
	}{
		{"2025-11/contratos/_READY", "2025-11/contratos/", true},
		{"_READY", "", true},
		{"2025-11/contratos/PEREZ JUAN.pdf", "", false},
		{"2025-11/_READY.bak", "", false},
	}
	for _, tt := range tests {
		got, ok := batchPrefix(tt.object, "_READY")
		if got != tt.want || ok != tt.ok {
			t.Errorf("batchPrefix(%q) = %q, %v; want %q, %v", tt.object, got, ok, tt.want, tt.ok)
		}
	}
}

func TestDirectChildren(t *testing.T) {
	objects := []string{"b/z.pdf", "b/a.pdf", "b/old/x.pdf", "b/"}
	got := directChildren(objects, "b/")
	want := []string{"b/a.pdf", "b/z.pdf"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("directChildren = %v, want %v", got, want)
	}
}

func TestManifestHash(t *testing.T) {
	a := manifestHash(map[string]string{"a.pdf": "1", "b.pdf": "2"})
	b := manifestHash(map[string]string{"b.pdf": "2", "a.pdf": "1"})
	if a != b {
		t.Error("manifest hash depends on map order")
	}
	if c := manifestHash(map[string]string{"a.pdf": "1", "b.pdf": "3"}); c == a {
		t.Error("content change did not change the manifest hash")
	}
	if c := manifestHash(map[string]string{"a.pdf": "1", "c.pdf": "2"}); c == a {
		t.Error("rename did not change the manifest hash")
	}
}
