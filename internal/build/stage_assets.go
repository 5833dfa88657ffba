package build

import (
	"context"
	"path/filepath"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

var stylesheetExts = map[string]bool{".css": true, ".scss": true, ".sass": true, ".less": true}

func isStylesheet(path string) bool {
	return stylesheetExts[strings.ToLower(filepath.Ext(path))]
}

// stageCopyAssets copies non-source assets to their destinations. The first
// failure aborts the stage; copies are not retried.
func stageCopyAssets(ctx context.Context, bs *BuildState) error {
	var copied atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bs.Config.Concurrency)
	for _, f := range bs.Groups.Assets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := bs.Out.CopyAsset(f.Path, f.Destination); err != nil {
				return err
			}
			copied.Add(1)
			if isStylesheet(f.Path) {
				bs.addStylesheet(f.Destination)
			}
			return nil
		})
	}
	err := g.Wait()
	bs.Report.AssetsCopied = int(copied.Load())
	return err
}
