package graph

import "testing"

func TestDecodeFrame(t *testing.T) {
	t.Run("terminator literal", func(t *testing.T) {
		ev, err := DecodeFrame([]byte("[DONE]"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ev.Type != EventEndOfStream {
			t.Errorf("expected end_of_stream, got %s", ev.Type)
		}
	})

	t.Run("terminator with surrounding whitespace", func(t *testing.T) {
		ev, err := DecodeFrame([]byte("  [DONE]\r"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ev.Type != EventEndOfStream {
			t.Errorf("expected end_of_stream, got %s", ev.Type)
		}
	})

	t.Run("step_start frame", func(t *testing.T) {
		line := `{"type":"step_start","step":"supervisor","input":{"q":"hi"},"parent_checkpoint_id":"c1"}`
		ev, err := DecodeFrame([]byte(line))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ev.Type != EventStepStart {
			t.Errorf("expected step_start, got %s", ev.Type)
		}
		if ev.Step != "supervisor" {
			t.Errorf("expected step supervisor, got %q", ev.Step)
		}
		if ev.ParentCheckpointID != "c1" {
			t.Errorf("expected parent c1, got %q", ev.ParentCheckpointID)
		}
		if string(ev.Input) != `{"q":"hi"}` {
			t.Errorf("input not preserved: %s", ev.Input)
		}
	})

	t.Run("token frame", func(t *testing.T) {
		ev, err := DecodeFrame([]byte(`{"type":"token","step":"agent","text":"hel"}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ev.Type != EventToken || ev.Text != "hel" {
			t.Errorf("token not decoded: %+v", ev)
		}
	})

	t.Run("checkpoint frame", func(t *testing.T) {
		ev, err := DecodeFrame([]byte(`{"type":"checkpoint","step":"agent","checkpoint_id":"c2","parent_checkpoint_id":"c1"}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ev.CheckpointID != "c2" || ev.ParentCheckpointID != "c1" {
			t.Errorf("checkpoint ids not decoded: %+v", ev)
		}
	})

	t.Run("interrupt frame", func(t *testing.T) {
		ev, err := DecodeFrame([]byte(`{"type":"interrupt","pending_tool_call":{"name":"search"},"next_steps":["agentA","agentB"]}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ev.Type != EventInterrupt {
			t.Errorf("expected interrupt, got %s", ev.Type)
		}
		if len(ev.NextSteps) != 2 {
			t.Errorf("expected 2 next steps, got %d", len(ev.NextSteps))
		}
	})

	t.Run("unrecognized type becomes unknown", func(t *testing.T) {
		ev, err := DecodeFrame([]byte(`{"type":"heartbeat","step":"x"}`))
		if err != nil {
			t.Fatalf("unknown type must not error: %v", err)
		}
		if ev.Type != EventUnknown {
			t.Errorf("expected unknown, got %s", ev.Type)
		}
	})

	t.Run("missing type becomes unknown", func(t *testing.T) {
		ev, err := DecodeFrame([]byte(`{"step":"x"}`))
		if err != nil {
			t.Fatalf("missing type must not error: %v", err)
		}
		if ev.Type != EventUnknown {
			t.Errorf("expected unknown, got %s", ev.Type)
		}
	})

	t.Run("malformed JSON errors", func(t *testing.T) {
		if _, err := DecodeFrame([]byte(`{"type":"token",`)); err == nil {
			t.Error("expected error for malformed frame")
		}
	})

	t.Run("empty frame errors", func(t *testing.T) {
		if _, err := DecodeFrame([]byte("   ")); err == nil {
			t.Error("expected error for empty frame")
		}
	})
}
