package slog

import (
	"bytes"
	"encoding/json"
	stdslog "log/slog"
	"strings"
	"testing"

	"github.com/unkn0wn-root/swrcache"
)

func TestWritesStructuredRecords(t *testing.T) {
	var buf bytes.Buffer
	l := New(stdslog.New(stdslog.NewJSONHandler(&buf, &stdslog.HandlerOptions{Level: stdslog.LevelInfo})))

	l.Debug("filtered", swrcache.Fields{"k": 1})
	l.Warn("lock lost before release", swrcache.Fields{"lock": "settlement:g1:a:b"})

	out := strings.TrimSpace(buf.String())
	if strings.Count(out, "\n") != 0 {
		t.Fatalf("expected exactly one record, got %q", out)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(out), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec["level"] != "WARN" || rec["lock"] != "settlement:g1:a:b" || rec["component"] != "swrcache" {
		t.Fatalf("record = %v", rec)
	}
}

func TestFieldOrderStable(t *testing.T) {
	got := attrs(swrcache.Fields{"b": 2, "a": 1, "c": 3})
	if len(got) != 3 || got[0].Key != "a" || got[1].Key != "b" || got[2].Key != "c" {
		t.Fatalf("attrs = %v", got)
	}
}
