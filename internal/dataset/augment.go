package dataset

import "math/rand"

// Pad is the reflection padding applied before the random crop.
const Pad = 4

// CropParams selects one random crop and flip of a padded image.
type CropParams struct {
	OffsetY, OffsetX int // in [0, 2·Pad]
	Flip             bool
}

// RandomCrop draws crop parameters from rng.
func RandomCrop(rng *rand.Rand) CropParams {
	return CropParams{
		OffsetY: rng.Intn(2*Pad + 1),
		OffsetX: rng.Intn(2*Pad + 1),
		Flip:    rng.Intn(2) == 1,
	}
}

// CenterCrop is the identity crop of a 32×32 image.
var CenterCrop = CropParams{OffsetY: Pad, OffsetX: Pad}

// Transform writes the cropped, optionally flipped and normalized image
// src into dst. Pixels are scaled to [0, 1], then (v - mean) / std per
// channel. Reads outside the image reflect at the border without
// repeating the edge pixel.
func Transform(dst []float32, src []byte, p CropParams, mean, std [Channels]float32) {
	for c := 0; c < Channels; c++ {
		plane := src[c*Height*Width : (c+1)*Height*Width]
		out := dst[c*Height*Width : (c+1)*Height*Width]
		m, s := mean[c], std[c]
		for y := 0; y < Height; y++ {
			sy := reflect(y+p.OffsetY-Pad, Height)
			for x := 0; x < Width; x++ {
				xx := x
				if p.Flip {
					xx = Width - 1 - x
				}
				sx := reflect(xx+p.OffsetX-Pad, Width)
				v := float32(plane[sy*Width+sx]) / 255.0
				out[y*Width+x] = (v - m) / s
			}
		}
	}
}

func reflect(i, n int) int {
	if i < 0 {
		return -i
	}
	if i >= n {
		return 2*(n-1) - i
	}
	return i
}
