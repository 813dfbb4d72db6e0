package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		wantErr bool
	}{
		{"zero size", 0, 0, true},
		{"negative overlap", 10, -1, true},
		{"overlap equals size", 10, 10, true},
		{"overlap larger than size", 10, 20, true},
		{"fixed ingestion config", 200, 50, false},
		{"no overlap", 10, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.size, tt.overlap)
			if (err != nil) != tt.wantErr {
				t.Errorf("New(%d, %d) error = %v, wantErr %v", tt.size, tt.overlap, err, tt.wantErr)
			}
		})
	}
}

func TestSplit_ShortText(t *testing.T) {
	s, _ := New(200, 50)
	chunks := s.Split("  A short paragraph.  ")
	if len(chunks) != 1 || chunks[0] != "A short paragraph." {
		t.Errorf("Split() = %q, want single trimmed chunk", chunks)
	}
}

func TestSplit_Empty(t *testing.T) {
	s, _ := New(200, 50)
	if chunks := s.Split("   \n\n  "); len(chunks) != 0 {
		t.Errorf("Split() of whitespace = %q, want none", chunks)
	}
}

func TestSplit_RespectsSize(t *testing.T) {
	s, _ := New(200, 50)
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 60)

	chunks := s.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if n := utf8.RuneCountInString(c); n > 200 {
			t.Errorf("chunk %d has %d runes, want <= 200", i, n)
		}
	}
}

func TestSplit_Overlap(t *testing.T) {
	s, _ := New(20, 10)
	words := "one two three four five six seven eight nine ten eleven twelve"

	chunks := s.Split(words)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %q", chunks)
	}
	for i := 1; i < len(chunks); i++ {
		prevWords := strings.Fields(chunks[i-1])
		last := prevWords[len(prevWords)-1]
		if !strings.Contains(chunks[i], last) {
			t.Errorf("chunk %d %q should repeat %q from previous chunk %q", i, chunks[i], last, chunks[i-1])
		}
	}
}

func TestSplit_NoOverlap(t *testing.T) {
	s, _ := New(10, 0)
	chunks := s.Split("aaaa bbbb cccc dddd")
	want := []string{"aaaa bbbb", "cccc dddd"}
	if len(chunks) != len(want) {
		t.Fatalf("Split() = %q, want %q", chunks, want)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, chunks[i], want[i])
		}
	}
}

func TestSplit_PrefersParagraphs(t *testing.T) {
	s, _ := New(30, 0)
	text := "First paragraph here.\n\nSecond paragraph here."

	chunks := s.Split(text)
	if len(chunks) != 2 {
		t.Fatalf("Split() = %q, want 2 chunks", chunks)
	}
	if chunks[0] != "First paragraph here." || chunks[1] != "Second paragraph here." {
		t.Errorf("Split() = %q, want paragraphs split apart", chunks)
	}
}

func TestSplit_LongWordFallsBackToCharacters(t *testing.T) {
	s, _ := New(10, 2)
	chunks := s.Split(strings.Repeat("x", 25))
	if len(chunks) < 3 {
		t.Fatalf("Split() = %q, want character-level chunks", chunks)
	}
	for _, c := range chunks {
		if utf8.RuneCountInString(c) > 10 {
			t.Errorf("chunk %q longer than 10 runes", c)
		}
	}
}

func TestSplit_CountsRunes(t *testing.T) {
	s, _ := New(5, 0)
	chunks := s.Split("ééééé ààààà")
	if len(chunks) != 2 {
		t.Fatalf("Split() = %q, want 2 chunks of 5 runes", chunks)
	}
}

func TestSplit_OversizedParagraphFallsBackToLines(t *testing.T) {
	s, _ := New(30, 0)
	text := "Short intro.\n\nline one is here\nline two is here\nline three here"

	chunks := s.Split(text)
	want := []string{"Short intro.", "line one is here", "line two is here", "line three here"}
	if len(chunks) != len(want) {
		t.Fatalf("Split() = %q, want %q", chunks, want)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, chunks[i], want[i])
		}
	}
}
