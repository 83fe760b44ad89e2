package keyspace

import (
	"strings"
	"testing"
)

func TestVersioned(t *testing.T) {
	if got, want := Versioned(Balances, "group:g1:balances"), "balances-v1:group:g1:balances"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if got := Versioned(DataType("nope"), "x"); got != "default-"+Version(Default)+":x" {
		t.Fatalf("unknown type should fall back to default, got %q", got)
	}
}

func TestDetect(t *testing.T) {
	cases := []struct {
		raw  string
		want DataType
	}{
		{"group:g1:balances", Balances},
		{"user:u1:balances", Balances},
		{"group:g1:expenses", Expenses},
		{"group:g1:settlements", Settlements},
		{"group:g1:analytics", Analytics},
		{"user:u1:dashboard", Analytics},
		{"user:u1:notifications", Notifications},
		{"user:u1", Users},
		{"user:u1:groups", Users},
		{"group:g1", Groups},
		{"group:g1:members", Groups},
		{"exchange-rates", Default},
		{"", Default},
	}
	for _, tc := range cases {
		if got := Detect(tc.raw); got != tc.want {
			t.Errorf("Detect(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestAutoVersionIdempotent(t *testing.T) {
	keys := []string{
		"group:g1:balances",
		"user:u9",
		"exchange-rates",
		"balances-v1:group:g1:balances",
		"expenses-v1:group:g1:expenses", // older version stays as is
		"user-settings:u1",              // looks like a prefix but has no version
		"group-vx:g1",
		"",
	}
	for _, k := range keys {
		once := AutoVersion(k)
		twice := AutoVersion(once)
		if once != twice {
			t.Errorf("AutoVersion not idempotent for %q: %q -> %q", k, once, twice)
		}
		if !IsVersioned(once) {
			t.Errorf("AutoVersion(%q) = %q is not versioned", k, once)
		}
	}
}

func TestAutoVersionDeterministic(t *testing.T) {
	for i := 0; i < 100; i++ {
		if got := AutoVersion("group:g1:settlements"); got != "settlements-v1:group:g1:settlements" {
			t.Fatalf("iteration %d: got %q", i, got)
		}
	}
}

func TestAutoVersionKeepsUnversionedLookalike(t *testing.T) {
	got := AutoVersion("user-settings:u1")
	if !strings.HasPrefix(got, "default-") {
		t.Fatalf("lookalike prefix should be versioned as default, got %q", got)
	}
}

func TestParse(t *testing.T) {
	dt, ok := Parse("settlements-v12:group:g1:settlements")
	if !ok || dt != Settlements {
		t.Fatalf("Parse: dt=%q ok=%v", dt, ok)
	}
	if _, ok := Parse("settlements-v:x"); ok {
		t.Fatalf("missing digits must not parse")
	}
	if _, ok := Parse("settlements-v1"); ok {
		t.Fatalf("missing colon must not parse")
	}
}

func TestEntityKeys(t *testing.T) {
	gk := GroupKeys("g1")
	want := map[string]bool{
		"group-v1:group:g1":                   true,
		"group-v1:group:g1:members":           true,
		"balances-v1:group:g1:balances":       true,
		Versioned(Expenses, "group:g1:expenses"): true,
		"settlements-v1:group:g1:settlements": true,
		"analytics-v1:group:g1:analytics":     true,
	}
	if len(gk) != len(want) {
		t.Fatalf("GroupKeys len=%d want %d: %v", len(gk), len(want), gk)
	}
	for _, k := range gk {
		if !want[k] {
			t.Errorf("unexpected group key %q", k)
		}
	}

	for _, k := range UserKeys("u1") {
		if !strings.Contains(k, ":user:u1") {
			t.Errorf("user key %q does not reference the user", k)
		}
		if !IsVersioned(k) {
			t.Errorf("user key %q not versioned", k)
		}
	}
}
