package models

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestGenerateDocumentID_Deterministic(t *testing.T) {
	a := GenerateDocumentID("https://example.com/docs")
	b := GenerateDocumentID("https://example.com/docs")
	if a != b {
		t.Errorf("GenerateDocumentID not deterministic: %q != %q", a, b)
	}
	if len(a) != 16 {
		t.Errorf("len(ID) = %d, want 16", len(a))
	}
	if a == GenerateDocumentID("https://example.com/other") {
		t.Error("different URLs should produce different IDs")
	}
}

func TestChunkID(t *testing.T) {
	id := ChunkID("https://example.com/", 7)
	if !strings.HasPrefix(id, GenerateDocumentID("https://example.com/")) {
		t.Errorf("ChunkID %q should start with the document ID", id)
	}
	if !strings.HasSuffix(id, "-0007") {
		t.Errorf("ChunkID %q should end with zero-padded position", id)
	}
}

func TestSource_JSONFieldNames(t *testing.T) {
	src := Source{
		Type:   SourceTypeHTML,
		URL:    "https://example.com/",
		Config: ChunkConfig{ChunkOverlap: 50, ChunkSize: 200},
	}

	data, err := json.Marshal(src)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	jsonStr := string(data)
	for _, field := range []string{`"type":"html"`, `"source":"https://example.com/"`, `"chunkOverlap":50`, `"chunkSize":200`} {
		if !strings.Contains(jsonStr, field) {
			t.Errorf("JSON missing %s: %s", field, jsonStr)
		}
	}
}
