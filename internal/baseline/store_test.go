package baseline

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	root := t.TempDir()
	s, err := NewStore(filepath.Join(root, "base"), filepath.Join(root, "diff"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestLoadBaseline_Missing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.LoadBaseline("nope")
	if !errors.Is(err, ErrBaselineMissing) {
		t.Fatalf("expected ErrBaselineMissing, got %v", err)
	}
}

func TestSaveLoadBaseline_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	data := encodePNG(t, image.NewNRGBA(image.Rect(0, 0, 3, 3)))

	if err := s.SaveBaseline("home", data); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.LoadBaseline("home")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("loaded bytes differ from saved bytes")
	}
}

func TestSaveBaseline_Overwrites(t *testing.T) {
	s := newTestStore(t)

	first := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	if err := s.SaveBaseline("home", encodePNG(t, first)); err != nil {
		t.Fatalf("save: %v", err)
	}
	// Prime the decode cache, then overwrite with a different image.
	if _, err := s.LoadBaselineImage("home"); err != nil {
		t.Fatalf("load image: %v", err)
	}

	second := image.NewNRGBA(image.Rect(0, 0, 5, 5))
	second.SetNRGBA(0, 0, color.NRGBA{255, 0, 0, 255})
	if err := s.SaveBaseline("home", encodePNG(t, second)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	img, err := s.LoadBaselineImage("home")
	if err != nil {
		t.Fatalf("load image after overwrite: %v", err)
	}
	if img.Bounds().Dx() != 5 {
		t.Errorf("cache served stale baseline: width %d, want 5", img.Bounds().Dx())
	}
}

func TestLoadIgnoredTexts_Absent(t *testing.T) {
	s := newTestStore(t)

	texts, err := s.LoadIgnoredTexts("home")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(texts) != 0 {
		t.Errorf("expected empty texts, got %v", texts)
	}
}

func TestLoadIgnoredTexts_CorruptSelfHeals(t *testing.T) {
	s := newTestStore(t)
	path := s.ignoredTextsPath("home")

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	texts, err := s.LoadIgnoredTexts("home")
	if err != nil {
		t.Fatalf("corrupt snapshot must not surface an error, got %v", err)
	}
	if len(texts) != 0 {
		t.Errorf("expected empty texts, got %v", texts)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Error("corrupt snapshot file should have been deleted")
	}
}

func TestSaveIgnoredTexts(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveIgnoredTexts("home", []string{"a", "b"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	texts, err := s.LoadIgnoredTexts("home")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(texts) != 2 || texts[0] != "a" || texts[1] != "b" {
		t.Errorf("round trip got %v", texts)
	}

	// Saving an empty list removes the previous snapshot entirely.
	if err := s.SaveIgnoredTexts("home", nil); err != nil {
		t.Fatalf("save empty: %v", err)
	}
	if _, err := os.Stat(s.ignoredTextsPath("home")); !errors.Is(err, os.ErrNotExist) {
		t.Error("stale snapshot should have been removed")
	}
}

func TestSaveDiff_CreatesFolder(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveDiff("home", []byte{1, 2, 3}); err != nil {
		t.Fatalf("save diff: %v", err)
	}
	if _, err := os.Stat(s.DiffPath("home")); err != nil {
		t.Errorf("diff artifact missing: %v", err)
	}
}

func TestPaths(t *testing.T) {
	root := t.TempDir()
	s, err := NewStore(filepath.Join(root, "base"), filepath.Join(root, "diff"))
	if err != nil {
		t.Fatal(err)
	}

	if got, want := s.BaselinePath("a"), filepath.Join(root, "base", "a.png"); got != want {
		t.Errorf("baseline path %q, want %q", got, want)
	}
	if got, want := s.DiffPath("a"), filepath.Join(root, "diff", "a.png"); got != want {
		t.Errorf("diff path %q, want %q", got, want)
	}
	if got, want := s.ignoredTextsPath("a"), filepath.Join(root, "base", "a_dom.json"); got != want {
		t.Errorf("snapshot path %q, want %q", got, want)
	}
}
