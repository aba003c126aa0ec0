package window

import (
	"errors"
	"testing"
)

func TestPatternAlternatives(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		raw   string
		title string
		want  bool
	}{
		{name: "first alt", raw: "Foo|foo", title: "Foo fighters", want: true},
		{name: "second alt", raw: "Foo|foo", title: "my foo window", want: true},
		{name: "no match", raw: "Foo|foo", title: "FOO", want: false},
		{name: "substring", raw: "Notepad", title: "readme.txt - Notepad", want: true},
		{name: "regex alt", raw: `Calc.*|^Paint$`, title: "Calculator", want: true},
		{name: "anchored alt", raw: `Calc.*|^Paint$`, title: "Paint 3D", want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			p, err := CompilePattern(tt.raw)
			if err != nil {
				t.Fatalf("CompilePattern(%q) error: %v", tt.raw, err)
			}
			if got := p.Match(tt.title); got != tt.want {
				t.Fatalf("Match(%q) = %v, want %v", tt.title, got, tt.want)
			}
		})
	}
}

func TestPatternInvalidAlternative(t *testing.T) {
	t.Parallel()
	_, err := CompilePattern("good|[bad")
	if err == nil {
		t.Fatal("expected error for invalid alternative")
	}
	var perr *PatternError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *PatternError, got %T", err)
	}
	if perr.Alt != "[bad" {
		t.Fatalf("Alt = %q, want %q", perr.Alt, "[bad")
	}
}

func TestPatternEmpty(t *testing.T) {
	t.Parallel()
	if _, err := CompilePattern(""); err == nil {
		t.Fatal("expected error for empty pattern")
	}
	if _, err := CompilePattern("|"); err == nil {
		t.Fatal("expected error for pattern with only empty alternatives")
	}
}
