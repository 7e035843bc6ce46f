package stages

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"

	"mediapress/internal/logging"
	"mediapress/internal/services"
	"mediapress/internal/testsupport"
)

func newTestLibrary(t *testing.T) *Library {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return NewLibrary(cfg, nil, logging.NewNop())
}

// writeTestImage renders a solid PNG of the given dimensions into dir.
func writeTestImage(t *testing.T, dir, name string, width, height int) string {
	t.Helper()
	img := imaging.New(width, height, color.NRGBA{R: 30, G: 120, B: 200, A: 255})
	path := filepath.Join(dir, name)
	if err := imaging.Save(img, path); err != nil {
		t.Fatalf("write test image: %v", err)
	}
	return path
}

func TestValidateClassifiesImage(t *testing.T) {
	lib := newTestLibrary(t)
	path := writeTestImage(t, t.TempDir(), "photo.png", 64, 48)

	out, err := lib.Validate(context.Background(), Context{TaskID: "t1", InputPath: path})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if out.Kind != KindImage {
		t.Errorf("kind = %q, want %q", out.Kind, KindImage)
	}
	if out.SizeBytes == 0 {
		t.Error("size_bytes not recorded")
	}
}

func TestValidateRejectsUnsupportedExtension(t *testing.T) {
	lib := newTestLibrary(t)
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := lib.Validate(context.Background(), Context{TaskID: "t1", InputPath: path})
	if !services.IsPermanent(err) {
		t.Fatalf("want permanent validation error, got %v", err)
	}
	if !strings.Contains(services.Message(err), "unsupported media format") {
		t.Errorf("message = %q", services.Message(err))
	}
}

func TestValidateRejectsEmptyFile(t *testing.T) {
	lib := newTestLibrary(t)
	path := filepath.Join(t.TempDir(), "blank.png")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := lib.Validate(context.Background(), Context{TaskID: "t1", InputPath: path})
	if !services.IsPermanent(err) {
		t.Fatalf("want permanent validation error, got %v", err)
	}
}

func TestValidateRejectsMissingFile(t *testing.T) {
	lib := newTestLibrary(t)

	_, err := lib.Validate(context.Background(), Context{
		TaskID:    "t1",
		InputPath: filepath.Join(t.TempDir(), "gone.png"),
	})
	if !services.IsPermanent(err) {
		t.Fatalf("want permanent validation error, got %v", err)
	}
}

func TestThumbnailFitsWithinBounds(t *testing.T) {
	lib := newTestLibrary(t)
	path := writeTestImage(t, t.TempDir(), "wide.png", 1000, 500)

	out, err := lib.Thumbnail(context.Background(), Context{
		TaskID: "t1", InputPath: path, Kind: KindImage,
	})
	if err != nil {
		t.Fatalf("thumbnail: %v", err)
	}
	thumb, err := imaging.Open(out.ThumbnailPath)
	if err != nil {
		t.Fatalf("open thumbnail: %v", err)
	}
	bounds := thumb.Bounds()
	if bounds.Dx() > 320 || bounds.Dy() > 320 {
		t.Errorf("thumbnail %dx%d exceeds 320x320", bounds.Dx(), bounds.Dy())
	}
	if filepath.Ext(out.ThumbnailPath) != ".jpg" {
		t.Errorf("thumbnail path = %q, want .jpg", out.ThumbnailPath)
	}
}

func TestOutputHeight(t *testing.T) {
	cases := []struct {
		width, srcW, srcH, want int
	}{
		{1920, 1000, 500, 960},
		{1280, 1000, 500, 640},
		{854, 1000, 500, 427},
		{1920, 4000, 1, 1},
		{854, 1000, 333, 284},
	}
	for _, tc := range cases {
		got := OutputHeight(tc.width, tc.srcW, tc.srcH)
		if got != tc.want {
			t.Errorf("OutputHeight(%d, %d, %d) = %d, want %d",
				tc.width, tc.srcW, tc.srcH, got, tc.want)
		}
	}
}

func TestConvertProducesAllVariants(t *testing.T) {
	lib := newTestLibrary(t)
	path := writeTestImage(t, t.TempDir(), "source.png", 1000, 500)

	out, err := lib.Convert(context.Background(), Context{
		TaskID: "t1", InputPath: path, Kind: KindImage,
	})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if len(out.Converted) != 3 {
		t.Fatalf("got %d variants, want 3", len(out.Converted))
	}

	wantDims := map[string][2]int{
		"1080p": {1920, 960},
		"720p":  {1280, 640},
		"480p":  {854, 427},
	}
	for _, variant := range out.Converted {
		dims, ok := wantDims[variant.Label]
		if !ok {
			t.Errorf("unexpected label %q", variant.Label)
			continue
		}
		img, err := imaging.Open(variant.Path)
		if err != nil {
			t.Errorf("open %s: %v", variant.Path, err)
			continue
		}
		bounds := img.Bounds()
		if bounds.Dx() != dims[0] || bounds.Dy() != dims[1] {
			t.Errorf("%s is %dx%d, want %dx%d",
				variant.Label, bounds.Dx(), bounds.Dy(), dims[0], dims[1])
		}
	}
}

func TestWatermarkMarksEveryVariant(t *testing.T) {
	lib := newTestLibrary(t)
	path := writeTestImage(t, t.TempDir(), "source.png", 1000, 500)

	converted, err := lib.Convert(context.Background(), Context{
		TaskID: "t1", InputPath: path, Kind: KindImage,
	})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	out, err := lib.Watermark(context.Background(), converted)
	if err != nil {
		t.Fatalf("watermark: %v", err)
	}
	if len(out.Watermarked) != len(converted.Converted) {
		t.Fatalf("got %d marked variants, want %d",
			len(out.Watermarked), len(converted.Converted))
	}
	for i, marked := range out.Watermarked {
		if marked.Label != converted.Converted[i].Label {
			t.Errorf("label mismatch at %d: %q vs %q",
				i, marked.Label, converted.Converted[i].Label)
		}
		if !strings.Contains(marked.Path, "_wm") {
			t.Errorf("marked path %q missing _wm suffix", marked.Path)
		}
		if _, err := os.Stat(marked.Path); err != nil {
			t.Errorf("marked file missing: %v", err)
		}
	}
}

// failingUploader simulates unreachable object storage.
type failingUploader struct{}

func (failingUploader) Upload(ctx context.Context, localPath, key string) (string, error) {
	return "", errors.New("connection refused")
}

// recordingUploader captures keys and returns deterministic URLs.
type recordingUploader struct {
	keys []string
}

func (u *recordingUploader) Upload(ctx context.Context, localPath, key string) (string, error) {
	u.keys = append(u.keys, key)
	return "https://cdn.example.com/" + key, nil
}

func TestPublishFallsBackToLocalPaths(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	lib := NewLibrary(cfg, failingUploader{}, logging.NewNop())

	sc := Context{
		TaskID:        "task-1",
		Kind:          KindImage,
		ThumbnailPath: "/media/thumb/a_thumb.jpg",
		Watermarked: []Rendition{
			{Label: "1080p", Path: "/media/output/a_1080p_wm.png"},
			{Label: "480p", Path: "/media/output/a_480p_wm.png"},
		},
	}
	out, err := lib.Publish(context.Background(), sc)
	if err != nil {
		t.Fatalf("publish must not fail on storage errors, got %v", err)
	}
	if out.ThumbnailURL != sc.ThumbnailPath {
		t.Errorf("thumbnail url = %q, want local path %q", out.ThumbnailURL, sc.ThumbnailPath)
	}
	for i, item := range out.Uploaded {
		if item.URL != sc.Watermarked[i].Path {
			t.Errorf("variant %s url = %q, want local path", item.Label, item.URL)
		}
	}
}

func TestPublishUsesTaskScopedKeys(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	uploader := &recordingUploader{}
	lib := NewLibrary(cfg, uploader, logging.NewNop())

	sc := Context{
		TaskID:        "task-9",
		Kind:          KindImage,
		ThumbnailPath: "/media/thumb/b_thumb.jpg",
		Watermarked:   []Rendition{{Label: "1080p", Path: "/media/output/b_1080p_wm.png"}},
	}
	out, err := lib.Publish(context.Background(), sc)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	want := []string{"task-9/b_1080p_wm.png", "task-9/b_thumb.jpg"}
	if fmt.Sprint(uploader.keys) != fmt.Sprint(want) {
		t.Errorf("keys = %v, want %v", uploader.keys, want)
	}
	if out.Uploaded[0].URL != "https://cdn.example.com/task-9/b_1080p_wm.png" {
		t.Errorf("url = %q", out.Uploaded[0].URL)
	}
}

func TestOutputsAssembly(t *testing.T) {
	sc := Context{
		ThumbnailURL: "https://cdn.example.com/t/thumb.jpg",
		Uploaded: []Published{
			{Label: "1080p", URL: "https://cdn.example.com/t/a_1080p_wm.png"},
			{Label: "480p", URL: "https://cdn.example.com/t/a_480p_wm.png"},
		},
	}
	outputs := Outputs(sc)
	if outputs.Thumbnail != sc.ThumbnailURL {
		t.Errorf("thumbnail = %q", outputs.Thumbnail)
	}
	if len(outputs.Variants) != 2 || outputs.Variants[0].Label != "1080p" {
		t.Errorf("variants = %+v", outputs.Variants)
	}
}

func TestPipelineOrderAndCheckpoints(t *testing.T) {
	lib := newTestLibrary(t)
	chain := lib.Pipeline()

	wantNames := []string{"validate", "thumbnail", "convert", "watermark", "publish", "finalize"}
	wantCheckpoints := []int{10, 25, 55, 75, 90, 100}
	if len(chain) != len(wantNames) {
		t.Fatalf("got %d stages, want %d", len(chain), len(wantNames))
	}
	for i, stage := range chain {
		if stage.Name != wantNames[i] {
			t.Errorf("stage %d = %q, want %q", i, stage.Name, wantNames[i])
		}
		if stage.Checkpoint != wantCheckpoints[i] {
			t.Errorf("stage %q checkpoint = %d, want %d",
				stage.Name, stage.Checkpoint, wantCheckpoints[i])
		}
	}
}
