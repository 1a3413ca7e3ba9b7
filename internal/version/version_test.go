package version

import (
	"strings"
	"testing"
)

func TestStringWithCommit(t *testing.T) {
	oldV, oldC := Version, Commit
	defer func() { Version, Commit = oldV, oldC }()

	Version, Commit = "1.4.0", "0123456789abcdef"
	got := String()
	if !strings.HasPrefix(got, "1.4.0 (0123456789ab, go") {
		t.Errorf("String() = %q", got)
	}
}

func TestStringDefault(t *testing.T) {
	if got := String(); !strings.HasPrefix(got, Version+" (") {
		t.Errorf("String() = %q", got)
	}
}
