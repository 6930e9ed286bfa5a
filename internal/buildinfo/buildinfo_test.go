package buildinfo_test

import (
	"strings"
	"testing"

	"taplive/internal/buildinfo"
)

func TestVersionIsSet(t *testing.T) {
	t.Parallel()

	v := buildinfo.String()
	if v == "" {
		t.Fatal("buildinfo.String() must not be empty")
	}
}

func TestLongIncludesVersion(t *testing.T) {
	t.Parallel()

	long := buildinfo.Long()
	if !strings.HasPrefix(long, "taplive "+buildinfo.String()) {
		t.Errorf("Long() = %q, want prefix %q", long, "taplive "+buildinfo.String())
	}
}
