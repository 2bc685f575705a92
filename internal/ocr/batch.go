package ocr

import (
	"context"
	"log"
	"strings"

	"golang.org/x/sync/errgroup"
)

// DefaultBatchSize bounds the number of concurrent OCR calls per exam.
const DefaultBatchSize = 8

// Batch runs one exam's OCR calls in bounded waves.
type Batch struct {
	Engine       Engine
	Size         int
	EmptyRetries int
	Logger       *log.Logger
}

// NewBatch returns a batch runner for engine.
func NewBatch(engine Engine, size, emptyRetries int, logger *log.Logger) *Batch {
	if logger == nil {
		logger = log.Default()
	}
	if size <= 0 {
		size = DefaultBatchSize
	}
	return &Batch{Engine: engine, Size: size, EmptyRetries: emptyRetries, Logger: logger}
}

// Run returns one text per path, in input order. Waves of at most Size
// calls run concurrently; failed calls yield empty text. Paths whose text
// is still empty afterwards are retried one at a time. Empty paths are
// crops that failed to render and are never sent to the engine.
func (b *Batch) Run(ctx context.Context, paths []string) []string {
	texts := make([]string, len(paths))
	size := b.Size
	if size <= 0 {
		size = DefaultBatchSize
	}

	for start := 0; start < len(paths); start += size {
		end := min(start+size, len(paths))
		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				texts[i] = b.recognize(ctx, paths[i])
				return nil
			})
		}
		_ = g.Wait()
	}

	for i, p := range paths {
		if p == "" {
			continue
		}
		for r := 0; r < b.EmptyRetries && strings.TrimSpace(texts[i]) == ""; r++ {
			if ctx.Err() != nil {
				return texts
			}
			texts[i] = b.recognize(ctx, p)
		}
	}
	return texts
}

func (b *Batch) recognize(ctx context.Context, path string) string {
	if path == "" {
		return ""
	}
	text, err := b.Engine.Recognize(ctx, path)
	if err != nil {
		b.Logger.Printf("OCR failed for %s: %v", path, err)
		return ""
	}
	return text
}
