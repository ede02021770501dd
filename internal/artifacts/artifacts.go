// Package artifacts stores confirmation screenshots and other binary output
// of an application attempt.
package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/autoapply-cli/api/schemas"
)

// LocalSink writes artifacts into a directory on disk.
type LocalSink struct {
	dir string
}

var _ schemas.ArtifactSink = (*LocalSink)(nil)

// NewLocalSink returns a sink rooted at dir. The directory is created lazily.
func NewLocalSink(dir string) *LocalSink {
	return &LocalSink{dir: dir}
}

// Put writes data to dir/name and returns the file path.
func (s *LocalSink) Put(ctx context.Context, name, _ string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean, err := cleanName(name)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	return path, nil
}

// cleanName rejects names that would escape the sink root.
func cleanName(name string) (string, error) {
	clean := filepath.ToSlash(filepath.Clean("/" + name))
	clean = strings.TrimPrefix(clean, "/")
	if clean == "" || clean == "." {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	return clean, nil
}

// Publish hands the artifact to every sink concurrently. It returns the
// locations that were written, in sink order, and the first error seen.
func Publish(ctx context.Context, sinks []schemas.ArtifactSink, name, contentType string, data []byte, logger *zap.Logger) ([]string, error) {
	locations := make([]string, len(sinks))
	var g errgroup.Group
	for i, sink := range sinks {
		g.Go(func() error {
			loc, err := sink.Put(ctx, name, contentType, data)
			if err != nil {
				logger.Warn("Failed to store artifact.", zap.String("name", name), zap.Error(err))
				return err
			}
			locations[i] = loc
			return nil
		})
	}
	err := g.Wait()

	written := make([]string, 0, len(locations))
	for _, loc := range locations {
		if loc != "" {
			written = append(written, loc)
		}
	}
	return written, err
}
