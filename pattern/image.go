package pattern

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

var (
	stepFilled = color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
	stepEmpty  = color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xFF}
	stepUnused = color.RGBA{R: 0x00, G: 0x00, B: 0x00, A: 0xFF}
)

// Thumbnail renders a one-pixel-tall strip of one bank: each step becomes a
// dot, white where the cell holds sub-notes, gray for an empty step inside
// the available bars, black outside them. Steps run left to right, bank
// rows concatenated in source order. The strip is then scaled to the
// requested size ignoring aspect ratio.
func (p *Pattern) Thumbnail(bank, targetWidth, targetHeight int) image.Image {
	p.mu.Lock()
	width := p.width
	bankLength := p.bankLength
	availableBars := p.availableBars
	strip := image.NewRGBA(image.Rect(0, 0, width*bankLength, 1))
	for row := bank * bankLength; row < (bank+1)*bankLength; row++ {
		for column := 0; column < width; column++ {
			dot := stepUnused
			if row-bank*bankLength < availableBars {
				dot = stepEmpty
				if row >= 0 && row < p.height {
					if c := p.cells[row*width+column]; c.note != nil && len(c.note.Subnotes()) > 0 {
						dot = stepFilled
					}
				}
			}
			strip.SetRGBA((row-bank*bankLength)*width+column, 0, dot)
		}
	}
	p.mu.Unlock()

	if targetWidth <= 0 || targetHeight <= 0 {
		targetWidth, targetHeight = 128, 128
	}
	scaled := image.NewRGBA(image.Rect(0, 0, targetWidth, targetHeight))
	draw.BiLinear.Scale(scaled, scaled.Bounds(), strip, strip.Bounds(), draw.Src, nil)
	return scaled
}
