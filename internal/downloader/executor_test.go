package downloader

import (
	"testing"

	"gallerygrab/pkg/gallery"
	"gallerygrab/pkg/storage"
)

type fakeLibrary struct {
	stored map[string]bool
}

func (f *fakeLibrary) Ingest(srcPath, fileID string) (storage.SavedFile, error) {
	return storage.SavedFile{FileID: fileID, Path: srcPath}, nil
}

func (f *fakeLibrary) IsStored(fileID string) bool { return f.stored[fileID] }

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"2026-08-24 10:31":  "2026-08-24-10-31",
		"Aug 24, 2026":      "aug-24-2026",
		"  ":                "",
		"já!? weird":        "j-weird",
	}
	for in, want := range cases {
		if got := slugify(in); got != want {
			t.Errorf("slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFileIDKeepsSuggestedExtension(t *testing.T) {
	e := &BrowserExecutor{library: &fakeLibrary{stored: map[string]bool{}}, fallbackExt: ".mp4"}
	item := gallery.Item{Timestamp: "2026-08-24 10:31", PromptText: "a red fox"}

	id := e.fileID(item, "artwork.webp")
	if got := id[len(id)-5:]; got != ".webp" {
		t.Errorf("file ID %q should keep the suggested extension", id)
	}

	// No suggestion falls back to the configured extension.
	id = e.fileID(item, "")
	if got := id[len(id)-4:]; got != ".mp4" {
		t.Errorf("file ID %q should fall back to the configured extension", id)
	}
}

func TestFileIDAvoidsCollisions(t *testing.T) {
	lib := &fakeLibrary{stored: map[string]bool{}}
	e := &BrowserExecutor{library: lib, fallbackExt: ".bin"}
	item := gallery.Item{Timestamp: "2026-08-24 10:31", PromptText: "a red fox"}

	first := e.fileID(item, "artwork.png")
	lib.stored[first] = true

	second := e.fileID(item, "artwork.png")
	if first == second {
		t.Errorf("colliding file IDs: %q", first)
	}
}

func TestFileIDUnknownTimestamp(t *testing.T) {
	e := &BrowserExecutor{library: &fakeLibrary{stored: map[string]bool{}}, fallbackExt: ".bin"}
	id := e.fileID(gallery.Item{}, "artwork.png")
	if id == "" {
		t.Fatal("empty file ID")
	}
	if id[0] == '_' {
		t.Errorf("file ID %q should start with a fallback slug", id)
	}
}
