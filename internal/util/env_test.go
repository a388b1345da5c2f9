package util

import "testing"

func TestGetEnvString(t *testing.T) {
	t.Run("set variable wins", func(t *testing.T) {
		t.Setenv("TEST_PORT", "9090")
		if got := GetEnvString("TEST_PORT", "8080"); got != "9090" {
			t.Fatalf("got %q, want %q", got, "9090")
		}
	})

	t.Run("unset falls back to default", func(t *testing.T) {
		if got := GetEnvString("TEST_UNSET_PORT", "8080"); got != "8080" {
			t.Fatalf("got %q, want %q", got, "8080")
		}
	})
}
