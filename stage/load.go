package stage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"imageresize/metrics"
	"imageresize/models"
	"imageresize/pool"
)

// ErrDuplicateID marks a source file whose ID is already taken by an
// earlier file of the same run, e.g. a.jpg and a.JPG.
var ErrDuplicateID = errors.New("duplicate image id")

type LoadConfig struct {
	SourceDir string
	// Filter is a glob such as "*.jpg", matched case-insensitively
	// against file names.
	Filter  string
	Workers int
}

// Discover lists the regular files directly inside dir whose name matches
// filter. Subdirectories are not descended into.
func Discover(dir, filter string) ([]string, error) {
	pattern := strings.ToLower(filter)
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid filter %q: %w", filter, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if ok, _ := filepath.Match(pattern, strings.ToLower(entry.Name())); ok {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	return files, nil
}

// ImageID is the file name without its extension.
func ImageID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Load decodes every matching file of cfg.SourceDir into out and then
// closes out. Files that fail to decode are skipped.
func Load(ctx context.Context, cfg LoadConfig, deps Deps, out *Queue) error {
	deps = deps.withDefaults()
	log := deps.Logger.With(zap.String("stage", NameLoad))
	v := &violations{}

	log.Info("Starting loading stage",
		zap.String("source", cfg.SourceDir),
		zap.String("filter", cfg.Filter),
		zap.Int("workers", cfg.Workers),
	)

	files, err := Discover(cfg.SourceDir, cfg.Filter)
	if err != nil {
		log.Error("File discovery failed", zap.Error(err))
		v.add(fmt.Errorf("load stage: discover %s: %w", cfg.SourceDir, err))
		closeQueue(log, NameResize, out, v)
		return v.result()
	}

	files = uniqueIDs(log, deps, files)

	p := pool.NewWorkerPool(cfg.Workers)
	for _, path := range files {
		if !p.Submit(ctx, func(ctx context.Context) {
			loadOne(ctx, log, deps, path, out, v)
		}) {
			log.Warn("Loading interrupted", zap.Error(ctx.Err()))
			break
		}
	}
	p.Wait()

	closeQueue(log, NameResize, out, v)
	log.Info("Completed loading stage",
		zap.Int("files", len(files)),
		zap.Int64("loaded", deps.Stats.Loaded.Load()),
	)
	return v.result()
}

// uniqueIDs keeps the first file for every ID, in directory order, and
// counts the rest as failed. Their status is not tracked since the ID
// belongs to the kept file.
func uniqueIDs(log *zap.Logger, deps Deps, files []string) []string {
	seen := make(map[string]string, len(files))
	kept := files[:0]
	for _, path := range files {
		id := ImageID(path)
		if first, ok := seen[id]; ok {
			deps.Stats.Failed.Add(1)
			deps.Metrics.ObserveRecord(NameLoad, metrics.OutcomeFailed, 0)
			log.Warn("Skipping image",
				zap.String("image_id", id),
				zap.String("path", path),
				zap.String("kept", first),
				zap.Error(ErrDuplicateID),
			)
			continue
		}
		seen[id] = path
		kept = append(kept, path)
	}
	return kept
}

func loadOne(ctx context.Context, log *zap.Logger, deps Deps, path string, out *Queue, v *violations) {
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	id := ImageID(path)
	log.Debug("Loading image", zap.String("image_id", id))

	img, err := deps.Converter.Decode(path)
	if err != nil {
		deps.fail(ctx, log, NameLoad, id, err)
		return
	}

	deps.track(ctx, log, id, models.StatusLoaded)
	if err := deps.push(ctx, log, NameLoad, out, models.ImageRecord{ID: id, Image: img}, v); err != nil {
		return
	}

	deps.Stats.Loaded.Add(1)
	deps.Metrics.ObserveRecord(NameLoad, metrics.OutcomeOK, time.Since(start))
}
