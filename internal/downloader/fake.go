package downloader

import (
	"context"
	"fmt"

	"gallerygrab/pkg/gallery"
	"gallerygrab/pkg/storage"
)

// FakeExecutor is a scripted Executor for orchestrator tests. Each call
// either fails per the script or reports a saved file named after the item.
type FakeExecutor struct {
	// Errs maps call number (0-based) to the error that call returns.
	Errs map[int]error

	Calls int
	Saved []storage.SavedFile
}

var _ Executor = (*FakeExecutor)(nil)

func (f *FakeExecutor) Download(ctx context.Context, item gallery.Item) (storage.SavedFile, error) {
	call := f.Calls
	f.Calls++
	if err := f.Errs[call]; err != nil {
		return storage.SavedFile{}, err
	}
	saved := storage.SavedFile{
		FileID:   fmt.Sprintf("%s.png", item.ID),
		Path:     fmt.Sprintf("/fake/%s.png", item.ID),
		Size:     int64(1024 + call),
		Checksum: fmt.Sprintf("%016x", call),
	}
	f.Saved = append(f.Saved, saved)
	return saved, ctx.Err()
}
