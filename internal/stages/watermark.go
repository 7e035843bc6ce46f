package stages

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"mediapress/internal/services"
)

// Watermark overlays the configured text mark on every converted variant,
// producing a parallel set of marked files next to the originals.
func (l *Library) Watermark(ctx context.Context, sc Context) (Context, error) {
	text := l.cfg.Pipeline.WatermarkText
	marked := make([]Rendition, 0, len(sc.Converted))

	for _, variant := range sc.Converted {
		ext := filepath.Ext(variant.Path)
		dst := strings.TrimSuffix(variant.Path, ext) + "_wm" + ext

		switch sc.Kind {
		case KindImage:
			if err := l.watermarkImage(variant.Path, dst, text); err != nil {
				return sc, err
			}
		case KindVideo:
			filter := fmt.Sprintf(
				"drawtext=text='%s':x=20:y=20:fontcolor=white:fontsize=24:box=1:boxcolor=black@0.4",
				strings.ReplaceAll(text, "'", ""))
			if err := l.runFFmpeg(ctx, "watermark",
				"-y", "-i", variant.Path, "-vf", filter, dst); err != nil {
				return sc, err
			}
		}
		marked = append(marked, Rendition{Label: variant.Label, Path: dst})
	}

	sc.Watermarked = marked
	l.logger.Info("variants watermarked", "task_id", sc.TaskID, "count", len(marked))
	return sc, nil
}

func (l *Library) watermarkImage(src, dst, text string) error {
	img, err := imaging.Open(src)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "watermark", "decode",
			fmt.Sprintf("decode %s", src), err)
	}
	base := imaging.Clone(img)
	drawText(base, 20, 20, text)
	if err := imaging.Save(base, dst); err != nil {
		return services.Wrap(services.ErrExternalTool, "watermark", "encode",
			fmt.Sprintf("write %s", dst), err)
	}
	return nil
}

// drawText renders text onto the image at the given origin using the built-in
// bitmap face. Good enough for a mark; no font files to ship.
func drawText(dst *image.NRGBA, x, y int, text string) {
	face := basicfont.Face7x13
	drawer := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.NRGBA{R: 255, G: 255, B: 255, A: 200}),
		Face: face,
		Dot:  fixed.P(x, y+face.Ascent),
	}
	drawer.DrawString(text)
}
