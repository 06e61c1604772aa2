// Package downloader turns "this detail view's item" into a file in the
// media library. Downloads go through the page's own download control so the
// gallery serves the original asset, not a re-encoded preview.
package downloader

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"

	"gallerygrab/pkg/config"
	"gallerygrab/pkg/errors"
	"gallerygrab/pkg/gallery"
	"gallerygrab/pkg/logger"
	"gallerygrab/pkg/metadata"
	"gallerygrab/pkg/storage"
	"gallerygrab/pkg/viewport"
)

// Executor saves the media of the currently open detail view.
type Executor interface {
	// Download triggers the detail view's download control and persists the
	// resulting file. item supplies naming metadata only; the open detail
	// view decides what gets downloaded.
	Download(ctx context.Context, item gallery.Item) (storage.SavedFile, error)
}

// Library is the slice of the storage manager the executor needs.
type Library interface {
	Ingest(srcPath, fileID string) (storage.SavedFile, error)
	IsStored(fileID string) bool
}

// BrowserExecutor drives real downloads through a chromedp browser: it
// points the browser's download machinery at a staging directory, clicks the
// page's download control, waits for the browser to report completion, then
// hands the staged file to the library.
type BrowserExecutor struct {
	vp          *viewport.Chromedp
	library     Library
	stagingDir  string
	timeout     time.Duration
	fallbackExt string
	log         logger.Logger
}

// NewBrowserExecutor wires an executor to the adapter's browser. stagingDir
// receives in-flight browser downloads and must be writable.
func NewBrowserExecutor(vp *viewport.Chromedp, library Library, stagingDir string, cfg config.DownloadConfig, log logger.Logger) (*BrowserExecutor, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ext := strings.TrimPrefix(cfg.FileExtension, ".")
	if ext == "" {
		ext = "bin"
	}
	if log == nil {
		log = logger.GetLogger()
	}

	e := &BrowserExecutor{
		vp:          vp,
		library:     library,
		stagingDir:  stagingDir,
		timeout:     timeout,
		fallbackExt: "." + ext,
		log:         log,
	}

	err := chromedp.Run(vp.BrowserContext(),
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(stagingDir).
			WithEventsEnabled(true),
	)
	if err != nil {
		return nil, fmt.Errorf("configuring browser downloads: %w", err)
	}
	return e, nil
}

// Download clicks the download control and follows the browser's download
// lifecycle events until the file lands in the staging directory.
func (e *BrowserExecutor) Download(ctx context.Context, item gallery.Item) (storage.SavedFile, error) {
	begun := make(chan *browser.EventDownloadWillBegin, 1)
	done := make(chan string, 1)     // GUID of the completed download
	canceled := make(chan string, 1) // GUID of a canceled download

	listenCtx, stopListening := context.WithCancel(e.vp.BrowserContext())
	defer stopListening()

	var guid string
	chromedp.ListenBrowser(listenCtx, func(ev interface{}) {
		switch ev := ev.(type) {
		case *browser.EventDownloadWillBegin:
			select {
			case begun <- ev:
			default:
			}
		case *browser.EventDownloadProgress:
			switch ev.State {
			case browser.DownloadProgressStateCompleted:
				select {
				case done <- ev.GUID:
				default:
				}
			case browser.DownloadProgressStateCanceled:
				select {
				case canceled <- ev.GUID:
				default:
				}
			}
		}
	})

	dispatched, err := e.vp.ClickDownload(ctx)
	if err != nil {
		return storage.SavedFile{}, errors.Wrap(errors.ErrorTypeDownload, "clicking download control", err)
	}
	if !dispatched {
		return storage.SavedFile{}, errors.New(errors.ErrorTypeDownload, "download control not found")
	}

	deadline := time.NewTimer(e.timeout)
	defer deadline.Stop()

	suggested := ""
	for {
		select {
		case <-ctx.Done():
			return storage.SavedFile{}, ctx.Err()
		case <-deadline.C:
			return storage.SavedFile{}, errors.New(errors.ErrorTypeTimeout, "download did not complete in time")
		case ev := <-begun:
			guid = ev.GUID
			suggested = ev.SuggestedFilename
		case g := <-canceled:
			if guid == "" || g == guid {
				return storage.SavedFile{}, errors.New(errors.ErrorTypeDownload, "browser canceled the download")
			}
		case g := <-done:
			if guid != "" && g != guid {
				continue
			}
			fileID := e.fileID(item, suggested)
			staged := filepath.Join(e.stagingDir, g)
			saved, err := e.library.Ingest(staged, fileID)
			if err != nil {
				return storage.SavedFile{}, errors.Wrap(errors.ErrorTypeDownload, "storing downloaded file", err)
			}
			if err := metadata.ForItem(item, saved).Save(saved.Path); err != nil {
				// The media file is safe; only the sidecar is missing.
				e.log.WithError(err).Warn("failed to write metadata sidecar")
			}
			e.log.DebugWithFields("download stored", map[string]interface{}{
				"file_id":  saved.FileID,
				"size":     saved.Size,
				"checksum": saved.Checksum,
			})
			return saved, nil
		}
	}
}

// fileID derives a stable library filename: a slug of the item's timestamp
// plus a short prompt hash, keeping the extension the gallery suggested.
func (e *BrowserExecutor) fileID(item gallery.Item, suggested string) string {
	ext := filepath.Ext(suggested)
	if ext == "" {
		ext = e.fallbackExt
	}

	slug := slugify(item.Timestamp)
	if slug == "" {
		slug = "item"
	}
	id := fmt.Sprintf("%s_%08x%s", slug, xxhash.Sum64String(item.PromptText)&0xffffffff, ext)

	// Identical fingerprints never reach the executor twice, but distinct
	// items can collide on truncated metadata. Suffix until free.
	for n := 2; e.library.IsStored(id); n++ {
		id = fmt.Sprintf("%s_%08x_%d%s", slug, xxhash.Sum64String(item.PromptText)&0xffffffff, n, ext)
	}
	return id
}

func slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == ':', r == '-', r == '/', r == '.':
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
