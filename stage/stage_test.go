package stage

import (
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"imageresize/converter"
	"imageresize/kafka"
	"imageresize/models"
	"imageresize/queue"
)

func writeJPEG(t *testing.T, dir, name string, width, height int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}

	path := filepath.Join(dir, name)
	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()
	require.NoError(t, jpeg.Encode(file, img, &jpeg.Options{Quality: 90}))
	return path
}

func drainIDs(t *testing.T, q *Queue) []string {
	t.Helper()
	var ids []string
	for rec := range q.Drain(context.Background()) {
		ids = append(ids, rec.ID)
	}
	sort.Strings(ids)
	return ids
}

type fakeTracker struct {
	mu       sync.Mutex
	statuses map[string]models.Status
}

func (f *fakeTracker) Set(ctx context.Context, runID, imageID string, status models.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statuses == nil {
		f.statuses = make(map[string]models.Status)
	}
	f.statuses[imageID] = status
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*kafka.ImageEvent
}

func (f *fakePublisher) PublishSaved(ctx context.Context, event *kafka.ImageEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	writeJPEG(t, dir, "a.jpg", 4, 4)
	writeJPEG(t, dir, "B.JPG", 4, 4)
	writeJPEG(t, dir, "c.png", 4, 4)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.jpg"), 0o755))

	files, err := Discover(dir, "*.jpg")
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}
	sort.Strings(names)
	assert.Equal(t, []string{"B.JPG", "a.jpg"}, names)

	_, err = Discover(dir, "[")
	assert.ErrorIs(t, err, filepath.ErrBadPattern)
}

func TestImageID(t *testing.T) {
	assert.Equal(t, "holiday.2011", ImageID("/src/holiday.2011.jpg"))
	assert.Equal(t, "a", ImageID("a.jpg"))
}

func TestLoad_SkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	writeJPEG(t, dir, "a.jpg", 20, 10)
	writeJPEG(t, dir, "b.jpg", 10, 10)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.jpg"), []byte("garbage"), 0o644))

	core, logs := observer.New(zap.WarnLevel)
	stats := &models.Stats{}
	tracker := &fakeTracker{}
	out := NewQueue(0)

	err := Load(context.Background(), LoadConfig{SourceDir: dir, Filter: "*.jpg", Workers: 2},
		Deps{Logger: zap.New(core), Stats: stats, Tracker: tracker}, out)
	require.NoError(t, err)

	assert.True(t, out.Closed())
	assert.Equal(t, []string{"a", "b"}, drainIDs(t, out))
	assert.Equal(t, int64(2), stats.Loaded.Load())
	assert.Equal(t, int64(1), stats.Failed.Load())

	skipped := logs.FilterMessage("Skipping image").All()
	require.Len(t, skipped, 1)
	assert.Equal(t, "c", skipped[0].ContextMap()["image_id"])
	assert.Equal(t, models.StatusFailed, tracker.statuses["c"])
	assert.Equal(t, models.StatusLoaded, tracker.statuses["a"])
}

func TestLoad_MissingSourceDirClosesQueue(t *testing.T) {
	out := NewQueue(0)
	err := Load(context.Background(), LoadConfig{SourceDir: filepath.Join(t.TempDir(), "missing"), Filter: "*.jpg", Workers: 1},
		Deps{Logger: zaptest.NewLogger(t)}, out)

	assert.Error(t, err)
	assert.True(t, out.Closed())
}

func TestLoad_ClosedQueueIsReported(t *testing.T) {
	dir := t.TempDir()
	writeJPEG(t, dir, "a.jpg", 8, 8)

	out := NewQueue(0)
	require.NoError(t, out.Close())

	stats := &models.Stats{}
	err := Load(context.Background(), LoadConfig{SourceDir: dir, Filter: "*.jpg", Workers: 1},
		Deps{Logger: zaptest.NewLogger(t), Stats: stats}, out)
	assert.ErrorIs(t, err, queue.ErrQueueClosed)
	assert.Equal(t, int64(0), stats.Loaded.Load())
	assert.Equal(t, int64(1), stats.Failed.Load())
}

func TestLoad_DuplicateIDsAreSkipped(t *testing.T) {
	dir := t.TempDir()
	writeJPEG(t, dir, "a.jpg", 40, 40)
	writeJPEG(t, dir, "a.JPG", 80, 80)
	writeJPEG(t, dir, "a.jpeg", 60, 60)
	writeJPEG(t, dir, "b.jpg", 10, 10)

	core, logs := observer.New(zap.WarnLevel)
	stats := &models.Stats{}
	tracker := &fakeTracker{}
	out := NewQueue(0)

	err := Load(context.Background(), LoadConfig{SourceDir: dir, Filter: "*.jp*g", Workers: 3},
		Deps{Logger: zap.New(core), Stats: stats, Tracker: tracker}, out)
	require.NoError(t, err)

	var recs []models.ImageRecord
	for rec := range out.Drain(context.Background()) {
		recs = append(recs, rec)
	}
	require.Len(t, recs, 2)
	for _, rec := range recs {
		if rec.ID == "a" {
			// "a.JPG" sorts first in the directory listing.
			assert.Equal(t, 80, rec.Image.Bounds().Dx())
		}
	}

	assert.Equal(t, int64(2), stats.Loaded.Load())
	assert.Equal(t, int64(2), stats.Failed.Load())
	assert.Equal(t, models.StatusLoaded, tracker.statuses["a"])

	skipped := logs.FilterMessage("Skipping image").All()
	require.Len(t, skipped, 2)
	for _, entry := range skipped {
		assert.Equal(t, "a", entry.ContextMap()["image_id"])
	}
}

func TestResize_DimensionLaw(t *testing.T) {
	ctx := context.Background()
	in, out := NewQueue(0), NewQueue(0)

	sizes := map[string][2]int{"a": {100, 50}, "b": {10, 10}, "c": {7, 250}}
	for id, s := range sizes {
		require.NoError(t, in.Push(ctx, models.ImageRecord{ID: id, Image: image.NewRGBA(image.Rect(0, 0, s[0], s[1]))}))
	}
	require.NoError(t, in.Close())

	stats := &models.Stats{}
	err := Resize(ctx, ResizeConfig{Factor: 0.1, Filter: imaging.Lanczos, Workers: 3},
		Deps{Logger: zaptest.NewLogger(t), Stats: stats}, in, out)
	require.NoError(t, err)
	assert.True(t, out.Closed())

	want := map[string][2]int{"a": {10, 5}, "b": {1, 1}, "c": {1, 25}}
	got := make(map[string][2]int)
	for rec := range out.Drain(ctx) {
		got[rec.ID] = [2]int{rec.Image.Bounds().Dx(), rec.Image.Bounds().Dy()}
	}
	assert.Equal(t, want, got)
	assert.Equal(t, int64(3), stats.Resized.Load())
}

func TestResize_SkipsMalformedPayload(t *testing.T) {
	ctx := context.Background()
	in, out := NewQueue(0), NewQueue(0)

	require.NoError(t, in.Push(ctx, models.ImageRecord{ID: "empty", Image: image.NewRGBA(image.Rect(0, 0, 0, 0))}))
	require.NoError(t, in.Push(ctx, models.ImageRecord{ID: "nil"}))
	require.NoError(t, in.Push(ctx, models.ImageRecord{ID: "ok", Image: image.NewRGBA(image.Rect(0, 0, 30, 30))}))
	require.NoError(t, in.Close())

	stats := &models.Stats{}
	err := Resize(ctx, ResizeConfig{Factor: 0.1, Filter: imaging.Box, Workers: 1},
		Deps{Logger: zaptest.NewLogger(t), Stats: stats}, in, out)
	require.NoError(t, err)

	assert.Equal(t, []string{"ok"}, drainIDs(t, out))
	assert.Equal(t, int64(2), stats.Failed.Load())
}

func TestResize_DelayHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	in, out := NewQueue(0), NewQueue(0)

	for _, id := range []string{"a", "b"} {
		require.NoError(t, in.Push(ctx, models.ImageRecord{ID: id, Image: image.NewRGBA(image.Rect(0, 0, 20, 20))}))
	}

	done := make(chan error, 1)
	go func() {
		done <- Resize(ctx, ResizeConfig{Factor: 0.5, Filter: imaging.Box, Delay: time.Hour, Workers: 2},
			Deps{Logger: zaptest.NewLogger(t)}, in, out)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("resize stage did not stop after cancellation")
	}
	assert.True(t, out.Closed())
	assert.Equal(t, 0, out.Len())
}

func TestSave_WritesOutputs(t *testing.T) {
	ctx := context.Background()
	outDir := filepath.Join(t.TempDir(), "resized")
	in := NewQueue(0)

	require.NoError(t, in.Push(ctx, models.ImageRecord{ID: "a", Image: image.NewNRGBA(image.Rect(0, 0, 10, 5))}))
	require.NoError(t, in.Push(ctx, models.ImageRecord{ID: "b", Image: image.NewNRGBA(image.Rect(0, 0, 1, 1))}))
	require.NoError(t, in.Close())

	stats := &models.Stats{}
	tracker := &fakeTracker{}
	publisher := &fakePublisher{}
	err := Save(ctx, SaveConfig{OutputDir: outDir, Format: converter.FormatPNG, Workers: 2},
		Deps{RunID: "run-1", Logger: zaptest.NewLogger(t), Stats: stats, Tracker: tracker, Publisher: publisher}, in)
	require.NoError(t, err)

	for id, size := range map[string][2]int{"a": {10, 5}, "b": {1, 1}} {
		file, err := os.Open(filepath.Join(outDir, id+".png"))
		require.NoError(t, err)
		img, err := png.Decode(file)
		file.Close()
		require.NoError(t, err)
		assert.Equal(t, size[0], img.Bounds().Dx())
		assert.Equal(t, size[1], img.Bounds().Dy())
		assert.Equal(t, models.StatusSaved, tracker.statuses[id])
	}

	assert.Equal(t, int64(2), stats.Saved.Load())
	require.Len(t, publisher.events, 2)
	for _, e := range publisher.events {
		assert.Equal(t, "run-1", e.RunID)
	}
}

func TestSave_WriteFailureIsSkipped(t *testing.T) {
	ctx := context.Background()
	outDir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(outDir, "a.png"), 0o755))

	in := NewQueue(0)
	require.NoError(t, in.Push(ctx, models.ImageRecord{ID: "a", Image: image.NewNRGBA(image.Rect(0, 0, 2, 2))}))
	require.NoError(t, in.Push(ctx, models.ImageRecord{ID: "b", Image: image.NewNRGBA(image.Rect(0, 0, 2, 2))}))
	require.NoError(t, in.Close())

	stats := &models.Stats{}
	err := Save(ctx, SaveConfig{OutputDir: outDir, Format: converter.FormatPNG, Workers: 1},
		Deps{Logger: zaptest.NewLogger(t), Stats: stats}, in)
	require.NoError(t, err)

	assert.Equal(t, int64(1), stats.Saved.Load())
	assert.Equal(t, int64(1), stats.Failed.Load())
}

func TestSave_UncreatableOutputDirFailsStage(t *testing.T) {
	ctx := context.Background()
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	in := NewQueue(1)
	go func() {
		for _, id := range []string{"a", "b", "c"} {
			in.Push(ctx, models.ImageRecord{ID: id, Image: image.NewNRGBA(image.Rect(0, 0, 2, 2))})
		}
		in.Close()
	}()

	stats := &models.Stats{}
	err := Save(ctx, SaveConfig{OutputDir: blocker, Format: converter.FormatPNG, Workers: 2},
		Deps{Logger: zaptest.NewLogger(t), Stats: stats}, in)
	require.Error(t, err)

	assert.True(t, in.Closed())
	assert.Equal(t, 0, in.Len())
	assert.Equal(t, int64(0), stats.Saved.Load())
	assert.Equal(t, int64(3), stats.Failed.Load())
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "a.jpg"), OutputPath("out", "a", converter.FormatJPEG))
	assert.Equal(t, filepath.Join("out", "a.png"), OutputPath("out", "a", converter.FormatPNG))
}
