package emit

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
)

func TestLogEmitter(t *testing.T) {
	event := Event{
		SessionID: "s-001",
		Seq:       3,
		Step:      "supervisor",
		Msg:       "occurrence_created",
		Meta:      map[string]interface{}{"uid": "occ:supervisor#0"},
	}

	t.Run("text mode", func(t *testing.T) {
		var buf bytes.Buffer
		NewLogEmitter(&buf, false).Emit(event)

		line := buf.String()
		for _, want := range []string{"[occurrence_created]", "session=s-001", "seq=3", "step=supervisor", `"uid":"occ:supervisor#0"`} {
			if !strings.Contains(line, want) {
				t.Errorf("missing %q in %q", want, line)
			}
		}
		if !strings.HasSuffix(line, "\n") {
			t.Error("missing trailing newline")
		}
	})

	t.Run("json mode emits one object per line", func(t *testing.T) {
		var buf bytes.Buffer
		NewLogEmitter(&buf, true).Emit(event)

		var decoded struct {
			SessionID string                 `json:"sessionID"`
			Seq       int                    `json:"seq"`
			Msg       string                 `json:"msg"`
			Meta      map[string]interface{} `json:"meta"`
		}
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("output is not valid JSON: %v (%q)", err, buf.String())
		}
		if decoded.SessionID != "s-001" || decoded.Seq != 3 || decoded.Msg != "occurrence_created" {
			t.Errorf("fields lost in encoding: %+v", decoded)
		}
		if decoded.Meta["uid"] != "occ:supervisor#0" {
			t.Errorf("meta lost in encoding: %v", decoded.Meta)
		}
	})
}

func TestBufferedEmitter(t *testing.T) {
	seed := func() *BufferedEmitter {
		b := NewBufferedEmitter()
		b.Emit(Event{SessionID: "a", Seq: 1, Step: "supervisor", Msg: "occurrence_created"})
		b.Emit(Event{SessionID: "a", Seq: 2, Step: "supervisor", Msg: "checkpoint_linked"})
		b.Emit(Event{SessionID: "a", Seq: 3, Step: "agentX", Msg: "occurrence_created"})
		b.Emit(Event{SessionID: "b", Seq: 1, Step: "supervisor", Msg: "parse_error"})
		return b
	}

	t.Run("history is per session and ordered", func(t *testing.T) {
		b := seed()
		got := b.History("a")
		if len(got) != 3 {
			t.Fatalf("expected 3 events, got %d", len(got))
		}
		for i, ev := range got {
			if ev.Seq != i+1 {
				t.Errorf("event %d out of order: %+v", i, ev)
			}
		}
		if len(b.History("missing")) != 0 {
			t.Error("unknown session should be empty")
		}
	})

	t.Run("filters compose with AND logic", func(t *testing.T) {
		b := seed()
		if got := b.HistoryWithFilter("a", HistoryFilter{Step: "supervisor"}); len(got) != 2 {
			t.Errorf("step filter: expected 2, got %d", len(got))
		}
		if got := b.HistoryWithFilter("a", HistoryFilter{Msg: "occurrence_created"}); len(got) != 2 {
			t.Errorf("msg filter: expected 2, got %d", len(got))
		}
		min, max := 2, 3
		got := b.HistoryWithFilter("a", HistoryFilter{Msg: "occurrence_created", MinSeq: &min, MaxSeq: &max})
		if len(got) != 1 || got[0].Step != "agentX" {
			t.Errorf("combined filter: %+v", got)
		}
	})

	t.Run("clear drops one session only", func(t *testing.T) {
		b := seed()
		b.Clear("a")
		if len(b.History("a")) != 0 || len(b.History("b")) != 1 {
			t.Error("clear must be scoped to the session")
		}
		b.ClearAll()
		if len(b.History("b")) != 0 {
			t.Error("clear all left events behind")
		}
	})

	t.Run("concurrent emits do not race", func(t *testing.T) {
		b := NewBufferedEmitter()
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					b.Emit(Event{SessionID: "a", Seq: n*100 + j, Msg: "occurrence_created"})
				}
			}(i)
		}
		wg.Wait()
		if got := len(b.History("a")); got != 800 {
			t.Errorf("expected 800 events, got %d", got)
		}
	})
}

func TestNullEmitter(t *testing.T) {
	// Emit must be safe on the zero-configuration default.
	NewNullEmitter().Emit(Event{SessionID: "a", Msg: "stream_end"})
}
