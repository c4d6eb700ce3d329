package version

import (
	"strings"
	"testing"
)

func TestInfo_DefaultsPresent(t *testing.T) {
	v, c, d := Info()
	if v == "" || c == "" || d == "" {
		t.Errorf("Info() = (%q, %q, %q), want non-empty defaults", v, c, d)
	}
}

func TestString_ContainsAllFields(t *testing.T) {
	s := String()
	for _, field := range []string{"version=", "commit=", "date="} {
		if !strings.Contains(s, field) {
			t.Errorf("String() = %q, missing %q", s, field)
		}
	}
}

func TestString_MatchesInfo(t *testing.T) {
	v, c, d := Info()
	want := "version=" + v + " commit=" + c + " date=" + d
	if got := String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
