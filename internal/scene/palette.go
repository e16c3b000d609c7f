package scene

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/kinereplay/backend/internal/models"
	"gopkg.in/yaml.v3"
)

var builtinColors = map[string]models.Color{
	"black":  {R: 0, G: 0, B: 0},
	"white":  {R: 1, G: 1, B: 1},
	"red":    {R: 1, G: 0, B: 0},
	"green":  {R: 0, G: 1, B: 0},
	"blue":   {R: 0, G: 0, B: 1},
	"yellow": {R: 1, G: 1, B: 0},
	"aqua":   {R: 0, G: 1, B: 1},
	"pink":   {R: 1, G: 0, B: 1},
	"purple": {R: 128.0 / 255, G: 0, B: 128.0 / 255},
}

// Palette resolves color attribute values. A nil palette knows only the
// built-in names.
type Palette struct {
	DefaultColor string                  `yaml:"default_color"`
	Colors       map[string]models.Color `yaml:"colors"`
}

// ParsePalette reads a YAML palette file.
func ParsePalette(filePath string) (*Palette, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ParsePaletteFromReader(file)
}

// ParsePaletteFromReader reads a YAML palette from an io.Reader.
func ParsePaletteFromReader(r io.Reader) (*Palette, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var p Palette
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	colors := make(map[string]models.Color, len(p.Colors))
	for name, c := range p.Colors {
		if !inUnit(c.R) || !inUnit(c.G) || !inUnit(c.B) {
			return nil, fmt.Errorf("palette color %q out of range [0,1]", name)
		}
		colors[strings.ToLower(name)] = c
	}
	p.Colors = colors
	if p.DefaultColor != "" {
		if _, ok := p.Lookup(p.DefaultColor); !ok {
			return nil, fmt.Errorf("palette default color %q is undefined", p.DefaultColor)
		}
	}
	return &p, nil
}

// Default returns the color used when an element sets none.
func (p *Palette) Default() models.Color {
	if p != nil && p.DefaultColor != "" {
		c, _ := p.Lookup(p.DefaultColor)
		return c
	}
	return builtinColors["black"]
}

// Lookup accepts a palette name, a built-in name, "#rrggbb", or "r,g,b" with
// components in [0,1].
func (p *Palette) Lookup(raw string) (models.Color, bool) {
	s := strings.TrimSpace(raw)
	name := strings.ToLower(s)
	if p != nil {
		if c, ok := p.Colors[name]; ok {
			return c, true
		}
	}
	if c, ok := builtinColors[name]; ok {
		return c, true
	}

	if strings.HasPrefix(s, "#") && len(s) == 7 {
		v, err := strconv.ParseUint(s[1:], 16, 32)
		if err != nil {
			return models.Color{}, false
		}
		return models.Color{
			R: float64((v>>16)&0xFF) / 255,
			G: float64((v>>8)&0xFF) / 255,
			B: float64(v&0xFF) / 255,
		}, true
	}

	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return models.Color{}, false
	}
	var comp [3]float64
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil || !inUnit(v) {
			return models.Color{}, false
		}
		comp[i] = v
	}
	return models.Color{R: comp[0], G: comp[1], B: comp[2]}, true
}

func inUnit(v float64) bool { return v >= 0 && v <= 1 }
