package exporter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"time"

	"github.com/cutroom/cutroom/internal/timeline"
	"github.com/cutroom/cutroom/pkg/util"
)

var assetClient = &http.Client{Timeout: 60 * time.Second}

// stagedSticker is a sticker element with its saved backing image
type stagedSticker struct {
	Element timeline.Element
	Path    string
}

// stageStickers saves every sticker's backing image into the session
// directory. Files are keyed by sticker asset id, so repeated lookups within
// one export are idempotent. Unlike audio assets, a sticker that cannot be
// staged is an error; the caller decides whether to drop stickers entirely.
func (x *Exporter) stageStickers(ctx context.Context, session *Session, stickers []timeline.Element) ([]stagedSticker, error) {
	staged := make([]stagedSticker, 0, len(stickers))

	for _, el := range stickers {
		st := el.Sticker

		if st.Path != "" && util.FileExists(st.Path) {
			staged = append(staged, stagedSticker{Element: el, Path: st.Path})
			continue
		}

		if st.URL == "" {
			return nil, fmt.Errorf("sticker %s has no local path or url", st.AssetID)
		}

		ext := path.Ext(st.URL)
		if ext == "" {
			ext = ".png"
		}
		dest := session.AssetPath("sticker-" + st.AssetID + ext)

		if !util.FileNonEmpty(dest) {
			if err := fetchToFile(ctx, st.URL, dest); err != nil {
				return nil, fmt.Errorf("failed to fetch sticker %s: %w", st.AssetID, err)
			}
		}

		staged = append(staged, stagedSticker{Element: el, Path: dest})
	}

	return staged, nil
}

// fetchToFile downloads a remote asset to a session-scoped file
func fetchToFile(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := assetClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		os.Remove(dest)
		return err
	}
	return nil
}
