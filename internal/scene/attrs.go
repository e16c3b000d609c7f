package scene

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/kinereplay/backend/internal/models"
)

var (
	boolTrue  = map[string]bool{"ON": true, "TRUE": true, "1": true, "YES": true}
	boolFalse = map[string]bool{"OFF": true, "FALSE": true, "0": true, "NO": true}
)

// Attrs gives typed access to the attributes of one configuration element.
// Every accessor fails with a ConfigParseError when a present value has the
// wrong type; the plain form also fails when the attribute is absent, the
// Or form substitutes the default instead.
type Attrs struct {
	element string
	values  map[string]string
	palette *Palette
}

// NewAttrs indexes the attributes of an element.
func NewAttrs(element string, attrs []xml.Attr, palette *Palette) *Attrs {
	values := make(map[string]string, len(attrs))
	for _, a := range attrs {
		values[a.Name.Local] = strings.TrimSpace(a.Value)
	}
	return &Attrs{element: element, values: values, palette: palette}
}

// Has reports whether the attribute is present.
func (a *Attrs) Has(name string) bool {
	_, ok := a.values[name]
	return ok
}

func (a *Attrs) missing(name string) error {
	return &models.ConfigParseError{Element: a.element, Attribute: name, Reason: "required attribute missing"}
}

func (a *Attrs) invalid(name, kind, raw string) error {
	return &models.ConfigParseError{Element: a.element, Attribute: name, Reason: fmt.Sprintf("%q is not a valid %s", raw, kind)}
}

// String returns a required string attribute.
func (a *Attrs) String(name string) (string, error) {
	v, ok := a.values[name]
	if !ok {
		return "", a.missing(name)
	}
	return v, nil
}

// StringOr returns a string attribute or def.
func (a *Attrs) StringOr(name, def string) string {
	if v, ok := a.values[name]; ok {
		return v
	}
	return def
}

// Int returns a required integer attribute.
func (a *Attrs) Int(name string) (int, error) {
	raw, ok := a.values[name]
	if !ok {
		return 0, a.missing(name)
	}
	return a.parseInt(name, raw)
}

// IntOr returns an integer attribute or def.
func (a *Attrs) IntOr(name string, def int) (int, error) {
	raw, ok := a.values[name]
	if !ok {
		return def, nil
	}
	return a.parseInt(name, raw)
}

func (a *Attrs) parseInt(name, raw string) (int, error) {
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, a.invalid(name, "integer", raw)
	}
	return v, nil
}

// Float returns a required double attribute.
func (a *Attrs) Float(name string) (float64, error) {
	raw, ok := a.values[name]
	if !ok {
		return 0, a.missing(name)
	}
	return a.parseFloat(name, raw)
}

// FloatOr returns a double attribute or def.
func (a *Attrs) FloatOr(name string, def float64) (float64, error) {
	raw, ok := a.values[name]
	if !ok {
		return def, nil
	}
	return a.parseFloat(name, raw)
}

func (a *Attrs) parseFloat(name, raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, a.invalid(name, "number", raw)
	}
	return v, nil
}

// BoolOr returns a boolean attribute or def. Accepts true/false, yes/no, on/off and 1/0.
func (a *Attrs) BoolOr(name string, def bool) (bool, error) {
	raw, ok := a.values[name]
	if !ok {
		return def, nil
	}
	u := strings.ToUpper(raw)
	if boolTrue[u] {
		return true, nil
	}
	if boolFalse[u] {
		return false, nil
	}
	return false, a.invalid(name, "boolean", raw)
}

// Enum returns a required attribute constrained to one of allowed.
func (a *Attrs) Enum(name string, allowed ...string) (string, error) {
	raw, ok := a.values[name]
	if !ok {
		return "", a.missing(name)
	}
	return a.parseEnum(name, raw, allowed)
}

// EnumOr returns an enumerated attribute or def.
func (a *Attrs) EnumOr(name, def string, allowed ...string) (string, error) {
	raw, ok := a.values[name]
	if !ok {
		return def, nil
	}
	return a.parseEnum(name, raw, allowed)
}

func (a *Attrs) parseEnum(name, raw string, allowed []string) (string, error) {
	for _, v := range allowed {
		if strings.EqualFold(raw, v) {
			return v, nil
		}
	}
	return "", &models.ConfigParseError{
		Element:   a.element,
		Attribute: name,
		Reason:    fmt.Sprintf("%q is not one of %s", raw, strings.Join(allowed, ", ")),
	}
}

// ColorOr returns a color attribute or def. See Palette.Lookup for the accepted forms.
func (a *Attrs) ColorOr(name string, def models.Color) (models.Color, error) {
	raw, ok := a.values[name]
	if !ok {
		return def, nil
	}
	c, ok := a.palette.Lookup(raw)
	if !ok {
		return models.Color{}, a.invalid(name, "color", raw)
	}
	return c, nil
}
