package env

import "testing"

func TestGetFallsBackWhenUnsetOrBlank(t *testing.T) {
	t.Setenv("PORTAL_TEST_VALUE", "  ")
	if got := Get("PORTAL_TEST_VALUE", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback for blank value, got %q", got)
	}
	t.Setenv("PORTAL_TEST_VALUE", "console")
	if got := Get("PORTAL_TEST_VALUE", "fallback"); got != "console" {
		t.Fatalf("expected console, got %q", got)
	}
}

func TestBool(t *testing.T) {
	t.Setenv("PORTAL_TEST_FLAG", "true")
	if !Bool("PORTAL_TEST_FLAG", false) {
		t.Fatal("expected true")
	}
	t.Setenv("PORTAL_TEST_FLAG", "nope")
	if !Bool("PORTAL_TEST_FLAG", true) {
		t.Fatal("invalid value should return fallback")
	}
}
