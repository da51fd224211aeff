package certificate

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Default style values.
const (
	DefaultFontSize = 45
	DefaultXOffset  = 0
	DefaultYOffset  = 25
)

// DefaultTextColor is the grey used when no colour is configured.
var DefaultTextColor = RGB{R: 93, G: 97, B: 103}

// RGB is a colour with 0..255 channels.
type RGB struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

// Unit converts a channel to the 0..1 range used by PDF colour operators.
func Unit(c int) float64 { return float64(c) / 255 }

// StyleOptions controls how the recipient name is drawn. Offsets are in
// points; positive X moves right and positive Y moves up.
type StyleOptions struct {
	FontSize  float64 `json:"fontSize"`
	XOffset   float64 `json:"xOffset"`
	YOffset   float64 `json:"yOffset"`
	TextColor *RGB    `json:"textColor,omitempty"`
}

// Defaults returns the documented style.
func Defaults() StyleOptions {
	c := DefaultTextColor
	return StyleOptions{FontSize: DefaultFontSize, XOffset: DefaultXOffset, YOffset: DefaultYOffset, TextColor: &c}
}

// Normalize replaces every unusable field with its default: non-finite
// numbers, a non-positive font size and a missing colour. Colour channels
// are clamped to 0..255.
func Normalize(s StyleOptions) StyleOptions {
	out := s
	if !finite(out.FontSize) || out.FontSize <= 0 {
		out.FontSize = DefaultFontSize
	}
	if !finite(out.XOffset) {
		out.XOffset = DefaultXOffset
	}
	if !finite(out.YOffset) {
		out.YOffset = DefaultYOffset
	}
	c := DefaultTextColor
	if s.TextColor != nil {
		c = RGB{R: clampChannel(s.TextColor.R), G: clampChannel(s.TextColor.G), B: clampChannel(s.TextColor.B)}
	}
	out.TextColor = &c
	return out
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

func clampChannel(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return v
}

// UnmarshalJSON accepts numbers and numeric strings. Any other value, or a
// missing field, decodes to NaN so Normalize substitutes the default.
func (s *StyleOptions) UnmarshalJSON(data []byte) error {
	var raw struct {
		FontSize  json.RawMessage `json:"fontSize"`
		XOffset   json.RawMessage `json:"xOffset"`
		YOffset   json.RawMessage `json:"yOffset"`
		TextColor json.RawMessage `json:"textColor"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.FontSize = lenientNumber(raw.FontSize)
	s.XOffset = lenientNumber(raw.XOffset)
	s.YOffset = lenientNumber(raw.YOffset)
	s.TextColor = lenientColor(raw.TextColor)
	return nil
}

func lenientNumber(msg json.RawMessage) float64 {
	if len(msg) == 0 {
		return math.NaN()
	}
	var v interface{}
	if err := json.Unmarshal(msg, &v); err != nil {
		return math.NaN()
	}
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	}
	return math.NaN()
}

// lenientColor returns nil unless every channel is numeric.
func lenientColor(msg json.RawMessage) *RGB {
	if len(msg) == 0 {
		return nil
	}
	var raw struct {
		R json.RawMessage `json:"r"`
		G json.RawMessage `json:"g"`
		B json.RawMessage `json:"b"`
	}
	if err := json.Unmarshal(msg, &raw); err != nil {
		return nil
	}
	r, g, b := lenientNumber(raw.R), lenientNumber(raw.G), lenientNumber(raw.B)
	if !finite(r) || !finite(g) || !finite(b) {
		return nil
	}
	return &RGB{R: int(math.Round(r)), G: int(math.Round(g)), B: int(math.Round(b))}
}
