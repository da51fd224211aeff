package certificate

// ComputeOrigin returns the baseline origin that centres text of
// measuredWidth on a pageWidth x pageHeight page, then shifts it by the
// offsets. The font size stands in for the glyph height. Nothing is wrapped
// or clipped; text wider than the page simply runs off it.
func ComputeOrigin(pageWidth, pageHeight float64, text string, fontSize, measuredWidth, xOffset, yOffset float64) (x, y float64) {
	x = (pageWidth-measuredWidth)/2 + xOffset
	y = (pageHeight-fontSize)/2 + yOffset
	return x, y
}
