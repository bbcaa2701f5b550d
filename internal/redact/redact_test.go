package redact

import (
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"none", "minimal", "strict"} {
		if _, err := ParseLevel(s); err != nil {
			t.Fatalf("ParseLevel(%q): %v", s, err)
		}
	}
	if _, err := ParseLevel("extreme"); err == nil {
		t.Fatal("invalid level accepted")
	}
}

func TestApply(t *testing.T) {
	cases := []struct {
		name    string
		level   Level
		in      string
		gone    []string
		markers []string
	}{
		{
			name:    "email minimal",
			level:   LevelMinimal,
			in:      "제 메일은 kim@example.com 이에요",
			gone:    []string{"kim@example.com"},
			markers: []string{"REDACTED_EMAIL"},
		},
		{
			name:    "url minimal",
			level:   LevelMinimal,
			in:      "여기 보세요 https://example.com/profile?id=3",
			gone:    []string{"https://example.com"},
			markers: []string{"REDACTED_URL"},
		},
		{
			name:    "phone strict",
			level:   LevelStrict,
			in:      "전화번호는 01012345678 이에요",
			gone:    []string{"01012345678"},
			markers: []string{"REDACTED_NUMBER"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Apply(tc.in, tc.level)
			if !res.Redacted {
				t.Fatal("Redacted flag not set")
			}
			for _, g := range tc.gone {
				if strings.Contains(res.Text, g) {
					t.Fatalf("%q survived redaction: %q", g, res.Text)
				}
			}
			for _, m := range tc.markers {
				if !strings.Contains(res.Text, m) {
					t.Fatalf("marker %q missing: %q", m, res.Text)
				}
			}
		})
	}
}

func TestApplyLeavesCleanTextAlone(t *testing.T) {
	res := Apply("의자가 책상 옆에 있어요", LevelStrict)
	if res.Redacted || res.Text != "의자가 책상 옆에 있어요" {
		t.Fatalf("clean text altered: %+v", res)
	}
}

func TestLevelNoneIsPassThrough(t *testing.T) {
	in := "kim@example.com 01012345678"
	res := Apply(in, LevelNone)
	if res.Redacted || res.Text != in {
		t.Fatalf("level none altered text: %+v", res)
	}
}

func TestMinimalKeepsNumbers(t *testing.T) {
	res := Apply("01012345678 주세요", LevelMinimal)
	if !strings.Contains(res.Text, "01012345678") {
		t.Fatalf("minimal level redacted digits: %q", res.Text)
	}
}
