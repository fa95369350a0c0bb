package value

import (
	"math"

	"github.com/maxkra/sasshost/errors"
)

// ColorSpace identifies how a color's three channels are interpreted.
type ColorSpace uint8

const (
	RGB ColorSpace = iota
	HSL
	HWB
)

func (s ColorSpace) String() string {
	switch s {
	case RGB:
		return "rgb"
	case HSL:
		return "hsl"
	case HWB:
		return "hwb"
	}
	return "unknown"
}

// Color holds three channels in one of the supported spaces plus an alpha.
// Channel ranges per space:
//
//	RGB: red/green/blue in [0, 255]
//	HSL: hue in degrees (wrapped to [0, 360)), saturation/lightness in [0, 100]
//	HWB: hue in degrees (wrapped), whiteness/blackness in [0, 100]
//
// Alpha is always in [0, 1]. Ranges are checked at construction; a Color
// that exists is valid.
type Color struct {
	Space ColorSpace
	c1    float64
	c2    float64
	c3    float64
	alpha float64
}

// NewRGB builds an RGB color. Alpha 1 is fully opaque.
func NewRGB(red, green, blue, alpha float64) (*Color, error) {
	for _, ch := range [...]struct {
		name string
		v    float64
	}{{"red", red}, {"green", green}, {"blue", blue}} {
		if ch.v < 0 || ch.v > 255 {
			return nil, errors.New("%s channel %g out of range [0, 255]", ch.name, ch.v)
		}
	}
	if err := checkAlpha(alpha); err != nil {
		return nil, err
	}
	return &Color{Space: RGB, c1: red, c2: green, c3: blue, alpha: alpha}, nil
}

// NewHSL builds an HSL color. Hue wraps; saturation and lightness are
// percentages.
func NewHSL(hue, saturation, lightness, alpha float64) (*Color, error) {
	if saturation < 0 || saturation > 100 {
		return nil, errors.New("saturation %g out of range [0, 100]", saturation)
	}
	if lightness < 0 || lightness > 100 {
		return nil, errors.New("lightness %g out of range [0, 100]", lightness)
	}
	if err := checkAlpha(alpha); err != nil {
		return nil, err
	}
	return &Color{Space: HSL, c1: wrapHue(hue), c2: saturation, c3: lightness, alpha: alpha}, nil
}

// NewHWB builds an HWB color. Hue wraps; whiteness and blackness are
// percentages.
func NewHWB(hue, whiteness, blackness, alpha float64) (*Color, error) {
	if whiteness < 0 || whiteness > 100 {
		return nil, errors.New("whiteness %g out of range [0, 100]", whiteness)
	}
	if blackness < 0 || blackness > 100 {
		return nil, errors.New("blackness %g out of range [0, 100]", blackness)
	}
	if err := checkAlpha(alpha); err != nil {
		return nil, err
	}
	return &Color{Space: HWB, c1: wrapHue(hue), c2: whiteness, c3: blackness, alpha: alpha}, nil
}

func checkAlpha(a float64) error {
	if a < 0 || a > 1 {
		return errors.New("alpha %g out of range [0, 1]", a)
	}
	return nil
}

func wrapHue(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	return h
}

// Channels returns the three channel values in the color's own space.
func (c *Color) Channels() (float64, float64, float64) { return c.c1, c.c2, c.c3 }

// Alpha returns the alpha channel in [0, 1].
func (c *Color) Alpha() float64 { return c.alpha }

// ToSpace converts the color to another space. Conversion is lossless
// within floating tolerance; converting to the color's own space returns
// the receiver.
func (c *Color) ToSpace(space ColorSpace) *Color {
	if space == c.Space {
		return c
	}
	r, g, b := c.rgb()
	switch space {
	case RGB:
		return &Color{Space: RGB, c1: r, c2: g, c3: b, alpha: c.alpha}
	case HSL:
		h, s, l := rgbToHSL(r, g, b)
		return &Color{Space: HSL, c1: h, c2: s, c3: l, alpha: c.alpha}
	default:
		h, w, bl := rgbToHWB(r, g, b)
		return &Color{Space: HWB, c1: h, c2: w, c3: bl, alpha: c.alpha}
	}
}

// rgb returns the channels as RGB regardless of the stored space.
func (c *Color) rgb() (float64, float64, float64) {
	switch c.Space {
	case RGB:
		return c.c1, c.c2, c.c3
	case HSL:
		return hslToRGB(c.c1, c.c2, c.c3)
	default:
		return hwbToRGB(c.c1, c.c2, c.c3)
	}
}

// Equal compares colors through RGB so equal colors in different spaces
// compare equal, within Epsilon per channel.
func (c *Color) Equal(other Value) bool {
	o, ok := other.(*Color)
	if !ok || !eqFloat(c.alpha, o.alpha) {
		return false
	}
	r1, g1, b1 := c.rgb()
	r2, g2, b2 := o.rgb()
	return eqFloat(r1, r2) && eqFloat(g1, g2) && eqFloat(b1, b2)
}

func (c *Color) isValue() {}

// hslToRGB converts hue [0,360), saturation/lightness [0,100] to RGB
// channels in [0,255].
func hslToRGB(h, s, l float64) (float64, float64, float64) {
	s /= 100
	l /= 100
	chroma := (1 - math.Abs(2*l-1)) * s
	x := chroma * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := l - chroma/2

	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = chroma, x, 0
	case h < 120:
		r, g, b = x, chroma, 0
	case h < 180:
		r, g, b = 0, chroma, x
	case h < 240:
		r, g, b = 0, x, chroma
	case h < 300:
		r, g, b = x, 0, chroma
	default:
		r, g, b = chroma, 0, x
	}
	return (r + m) * 255, (g + m) * 255, (b + m) * 255
}

func rgbToHSL(r, g, b float64) (float64, float64, float64) {
	r /= 255
	g /= 255
	b /= 255
	max := math.Max(r, math.Max(g, b))
	min := math.Min(r, math.Min(g, b))
	delta := max - min

	l := (max + min) / 2
	var h, s float64
	if delta != 0 {
		s = delta / (1 - math.Abs(2*l-1))
		switch max {
		case r:
			h = 60 * math.Mod((g-b)/delta, 6)
		case g:
			h = 60 * ((b-r)/delta + 2)
		default:
			h = 60 * ((r-g)/delta + 4)
		}
	}
	return wrapHue(h), s * 100, l * 100
}

// hwbToRGB converts hue [0,360), whiteness/blackness [0,100] to RGB
// channels in [0,255]. When whiteness + blackness reaches 100 the hue is
// irrelevant and the result is the corresponding gray.
func hwbToRGB(h, w, bl float64) (float64, float64, float64) {
	w /= 100
	bl /= 100
	if w+bl >= 1 {
		gray := w / (w + bl) * 255
		return gray, gray, gray
	}
	r, g, b := hslToRGB(h, 100, 50)
	scale := func(ch float64) float64 {
		return (ch/255*(1-w-bl) + w) * 255
	}
	return scale(r), scale(g), scale(b)
}

func rgbToHWB(r, g, b float64) (float64, float64, float64) {
	h, _, _ := rgbToHSL(r, g, b)
	max := math.Max(r, math.Max(g, b))
	min := math.Min(r, math.Min(g, b))
	return h, min / 255 * 100, (1 - max/255) * 100
}
