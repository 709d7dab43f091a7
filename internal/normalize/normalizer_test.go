package normalize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

// pageFake simulates the page-context half of the normalizer: it keeps
// a set of live text nodes and records every operation in order.
type pageFake struct {
	texts     []string
	ops       []string
	shot      []byte
	shotErr   error
	scriptErr error
}

func (f *pageFake) ExecuteScript(_ context.Context, fn string, args ...any) (json.RawMessage, error) {
	if f.scriptErr != nil {
		return nil, f.scriptErr
	}
	switch fn {
	case collectTextsScript:
		f.ops = append(f.ops, "collect")
		return json.Marshal(f.texts)
	case setTextsScript:
		incoming, ok := args[1].([]string)
		if !ok {
			return nil, fmt.Errorf("unexpected texts arg %T", args[1])
		}
		if len(incoming) != len(f.texts) {
			f.ops = append(f.ops, "set-skipped")
			return json.Marshal(map[string]any{"applied": false, "found": len(f.texts)})
		}
		f.texts = append([]string(nil), incoming...)
		f.ops = append(f.ops, "set")
		return json.Marshal(map[string]any{"applied": true, "found": len(f.texts)})
	case setHiddenScript:
		hidden, ok := args[1].(bool)
		if !ok {
			return nil, fmt.Errorf("unexpected hidden arg %T", args[1])
		}
		if hidden {
			f.ops = append(f.ops, "hide")
		} else {
			f.ops = append(f.ops, "unhide")
		}
		return json.Marshal(true)
	}
	return nil, fmt.Errorf("unknown script")
}

func (f *pageFake) Screenshot(context.Context) ([]byte, error) {
	f.ops = append(f.ops, "shoot")
	if f.shotErr != nil {
		return nil, f.shotErr
	}
	return f.shot, nil
}

func opsEqual(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestMatchedTexts(t *testing.T) {
	fake := &pageFake{texts: []string{"12:30", "order #99"}}
	n := New(fake)

	texts, err := n.MatchedTexts(context.Background(), []string{".volatile"})
	if err != nil {
		t.Fatalf("matched texts: %v", err)
	}
	if len(texts) != 2 || texts[0] != "12:30" || texts[1] != "order #99" {
		t.Errorf("got %v", texts)
	}
}

func TestMatchedTexts_NoSelectors(t *testing.T) {
	fake := &pageFake{}
	n := New(fake)

	texts, err := n.MatchedTexts(context.Background(), nil)
	if err != nil {
		t.Fatalf("matched texts: %v", err)
	}
	if texts != nil {
		t.Errorf("expected nil, got %v", texts)
	}
	if len(fake.ops) != 0 {
		t.Errorf("empty selector list must not reach the driver, ops=%v", fake.ops)
	}
}

func TestSetMatchedTexts_RoundTrip(t *testing.T) {
	fake := &pageFake{texts: []string{"a", "b", "c"}}
	n := New(fake)
	ctx := context.Background()
	sel := []string{".x"}

	if err := n.SetMatchedTexts(ctx, sel, []string{"1", "2", "3"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := n.MatchedTexts(ctx, sel)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := n.SetMatchedTexts(ctx, sel, got); err != nil {
		t.Fatalf("re-set: %v", err)
	}
	if fake.texts[0] != "1" || fake.texts[1] != "2" || fake.texts[2] != "3" {
		t.Errorf("texts after round trip: %v", fake.texts)
	}
}

func TestSetMatchedTexts_CountMismatchIsSoft(t *testing.T) {
	fake := &pageFake{texts: []string{"a", "b", "c"}}
	n := New(fake)

	// Two texts against three live nodes: skip, do not fail.
	if err := n.SetMatchedTexts(context.Background(), []string{".x"}, []string{"1", "2"}); err != nil {
		t.Fatalf("count mismatch must not error: %v", err)
	}
	if fake.texts[0] != "a" {
		t.Error("page texts must be untouched after a skipped substitution")
	}
}

func TestCaptureNormalized_Order(t *testing.T) {
	fake := &pageFake{texts: []string{"now"}, shot: []byte("png")}
	n := New(fake)

	shot, err := n.CaptureNormalized(context.Background(),
		[]string{".clock"}, []string{".ad"}, []string{"baseline-time"})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if string(shot) != "png" {
		t.Errorf("shot = %q", shot)
	}

	// Strict ordering: substitute, hide, shoot, re-read + restore, unhide.
	want := []string{"set", "hide", "shoot", "collect", "set", "unhide"}
	if !opsEqual(fake.ops, want) {
		t.Errorf("ops = %v, want %v", fake.ops, want)
	}
	// Restoration writes back what the substituted DOM held.
	if fake.texts[0] != "baseline-time" {
		t.Errorf("texts after capture: %v", fake.texts)
	}
}

func TestCaptureNormalized_NoBaselineTextsSkipsSubstitution(t *testing.T) {
	fake := &pageFake{texts: []string{"now"}, shot: []byte("png")}
	n := New(fake)

	if _, err := n.CaptureNormalized(context.Background(), []string{".clock"}, nil, nil); err != nil {
		t.Fatalf("capture: %v", err)
	}
	want := []string{"shoot", "collect", "set"}
	if !opsEqual(fake.ops, want) {
		t.Errorf("ops = %v, want %v", fake.ops, want)
	}
}

func TestCaptureNormalized_RestoresOnCaptureFailure(t *testing.T) {
	fake := &pageFake{
		texts:   []string{"now"},
		shotErr: errors.New("target crashed"),
	}
	n := New(fake)

	_, err := n.CaptureNormalized(context.Background(),
		[]string{".clock"}, []string{".ad"}, []string{"baseline-time"})
	if err == nil || !errors.Is(err, fake.shotErr) {
		t.Fatalf("expected driver error to propagate, got %v", err)
	}

	want := []string{"set", "hide", "shoot", "collect", "set", "unhide"}
	if !opsEqual(fake.ops, want) {
		t.Errorf("restoration must still run after a failed capture, ops = %v", fake.ops)
	}
}

func TestCaptureNormalized_HideOnly(t *testing.T) {
	fake := &pageFake{shot: []byte("png")}
	n := New(fake)

	if _, err := n.CaptureNormalized(context.Background(), nil, []string{".banner"}, nil); err != nil {
		t.Fatalf("capture: %v", err)
	}
	want := []string{"hide", "shoot", "unhide"}
	if !opsEqual(fake.ops, want) {
		t.Errorf("ops = %v, want %v", fake.ops, want)
	}
}
