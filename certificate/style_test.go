package certificate

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeFallsBackToDefaults(t *testing.T) {
	got := Normalize(StyleOptions{FontSize: -5, XOffset: math.NaN(), YOffset: math.Inf(1)})
	assert.Equal(t, Defaults(), got)

	got = Normalize(StyleOptions{FontSize: 0, XOffset: 12, YOffset: -4})
	assert.Equal(t, float64(DefaultFontSize), got.FontSize)
	assert.Equal(t, 12.0, got.XOffset)
	assert.Equal(t, -4.0, got.YOffset)
	assert.Equal(t, DefaultTextColor, *got.TextColor)
}

func TestNormalizeClampsColour(t *testing.T) {
	got := Normalize(StyleOptions{FontSize: 30, TextColor: &RGB{R: -20, G: 300, B: 128}})
	assert.Equal(t, RGB{R: 0, G: 255, B: 128}, *got.TextColor)
}

func TestNormalizeDoesNotAliasInput(t *testing.T) {
	in := StyleOptions{FontSize: 30, TextColor: &RGB{R: 1, G: 2, B: 3}}
	out := Normalize(in)
	out.TextColor.R = 99
	assert.Equal(t, 1, in.TextColor.R)
}

func TestStyleOptionsLenientJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want StyleOptions
	}{
		{
			name: "non numeric font size",
			in:   `{"fontSize":"abc","xOffset":0,"yOffset":10}`,
			want: StyleOptions{FontSize: 45, XOffset: 0, YOffset: 10, TextColor: &RGB{93, 97, 103}},
		},
		{
			name: "numeric strings",
			in:   `{"fontSize":"32","xOffset":" -4.5 ","yOffset":"7","textColor":{"r":"10","g":20,"b":30.6}}`,
			want: StyleOptions{FontSize: 32, XOffset: -4.5, YOffset: 7, TextColor: &RGB{10, 20, 31}},
		},
		{
			name: "legacy file without xOffset",
			in:   `{"fontSize":40,"yOffset":30,"textColor":{"r":0,"g":0,"b":0}}`,
			want: StyleOptions{FontSize: 40, XOffset: 0, YOffset: 30, TextColor: &RGB{0, 0, 0}},
		},
		{
			name: "broken colour",
			in:   `{"fontSize":null,"textColor":{"r":"red","g":0,"b":0}}`,
			want: Defaults(),
		},
		{
			name: "empty object",
			in:   `{}`,
			want: Defaults(),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var s StyleOptions
			require.NoError(t, json.Unmarshal([]byte(tc.in), &s))
			assert.Equal(t, tc.want, Normalize(s))
		})
	}
}

func TestStyleOptionsRejectsNonObject(t *testing.T) {
	var s StyleOptions
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &s))
}

func TestStyleOptionsMarshal(t *testing.T) {
	data, err := json.Marshal(Defaults())
	require.NoError(t, err)
	assert.JSONEq(t, `{"fontSize":45,"xOffset":0,"yOffset":25,"textColor":{"r":93,"g":97,"b":103}}`, string(data))
}
