package stages

import (
	// Registers webp decoding for image.Decode. There is no Go webp encoder,
	// so variants of webp sources are written as png, see sourceEncodeExt.
	_ "golang.org/x/image/webp"
)
