package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	return out
}

func TestLog_Success(t *testing.T) {
	var buf bytes.Buffer
	a := New(NewSlog(&buf, "info", "json"))

	a.Log(context.Background(), Entry{
		Action:  "postgresql_query",
		RunID:   "run_1",
		Params:  map[string]any{"zone": "75056"},
		Records: 3,
	})

	got := decode(t, &buf)
	if got["msg"] != "audit" || got["level"] != "INFO" {
		t.Fatalf("unexpected record: %v", got)
	}
	if got["action"] != "postgresql_query" || got["records"] != float64(3) || got["success"] != true {
		t.Fatalf("unexpected fields: %v", got)
	}
	params, ok := got["params"].(map[string]any)
	if !ok || params["zone"] != "75056" {
		t.Fatalf("params: %v", got["params"])
	}
}

func TestLog_Error(t *testing.T) {
	var buf bytes.Buffer
	a := New(NewSlog(&buf, "info", "json"))

	a.Log(context.Background(), Entry{Action: "mongodb_episodes_query", Err: errors.New("timeout")})

	got := decode(t, &buf)
	if got["level"] != "ERROR" || got["success"] != false || got["error"] != "timeout" {
		t.Fatalf("unexpected record: %v", got)
	}
}

func TestNewSlog_Level(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlog(&buf, "warn", "text")
	l.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info must be filtered at warn level: %q", buf.String())
	}
	l.Warn("shown")
	if buf.Len() == 0 {
		t.Fatal("warn must be written")
	}
}
