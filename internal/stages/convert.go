package stages

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"mediapress/internal/services"
)

// renditionTarget is one fixed output resolution.
type renditionTarget struct {
	Label string
	Width int
}

// Targets are fixed and ordered; retrying the stage redoes the full set.
var renditionTargets = []renditionTarget{
	{Label: "1080p", Width: 1920},
	{Label: "720p", Width: 1280},
	{Label: "480p", Width: 854},
}

// OutputHeight returns the scaled height for a target width, preserving the
// source aspect ratio. Rounds to nearest, never below one.
func OutputHeight(width, srcWidth, srcHeight int) int {
	h := int(math.Round(float64(width) * float64(srcHeight) / float64(srcWidth)))
	if h < 1 {
		return 1
	}
	return h
}

// Convert produces one labeled variant per fixed target width. Any variant
// failure aborts the remaining variants for this attempt.
func (l *Library) Convert(ctx context.Context, sc Context) (Context, error) {
	stem := fileStem(sc.InputPath)
	ext := sourceEncodeExt(sc)

	converted := make([]Rendition, 0, len(renditionTargets))
	for _, target := range renditionTargets {
		outPath := filepath.Join(l.cfg.Paths.OutputDir,
			fmt.Sprintf("%s_%s%s", stem, target.Label, ext))

		switch sc.Kind {
		case KindImage:
			img, err := imaging.Open(sc.InputPath)
			if err != nil {
				return sc, services.Wrap(services.ErrExternalTool, "convert", "decode",
					fmt.Sprintf("decode %s for %s", sc.InputPath, target.Label), err)
			}
			bounds := img.Bounds()
			height := OutputHeight(target.Width, bounds.Dx(), bounds.Dy())
			resized := imaging.Resize(img, target.Width, height, imaging.Lanczos)
			if err := imaging.Save(resized, outPath); err != nil {
				return sc, services.Wrap(services.ErrExternalTool, "convert", "encode",
					fmt.Sprintf("write %s variant %s", target.Label, outPath), err)
			}
		case KindVideo:
			err := l.runFFmpeg(ctx, "convert",
				"-y", "-i", sc.InputPath,
				"-vf", fmt.Sprintf("scale=%d:-2", target.Width),
				"-c:a", "copy", outPath)
			if err != nil {
				return sc, err
			}
		}
		converted = append(converted, Rendition{Label: target.Label, Path: outPath})
	}

	sc.Converted = converted
	l.logger.Info("variants converted", "task_id", sc.TaskID, "count", len(converted))
	return sc, nil
}

// sourceEncodeExt picks the variant file extension. webp images decode fine
// but cannot be re-encoded, so their variants are written as png.
func sourceEncodeExt(sc Context) string {
	ext := filepath.Ext(sc.InputPath)
	if sc.Kind == KindImage && strings.EqualFold(ext, ".webp") {
		return ".png"
	}
	return ext
}
