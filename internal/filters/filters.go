package filters

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"github.com/disintegration/imaging"
)

type ID string

const (
	None       ID = "none"
	Grayscale  ID = "grayscale"
	Sepia      ID = "sepia"
	Invert     ID = "invert"
	Blur       ID = "blur"
	Brightness ID = "brightness"
	Contrast   ID = "contrast"
	Clarendon  ID = "clarendon"
	Gingham    ID = "gingham"
	Moon       ID = "moon"
	Lark       ID = "lark"
	Reyes      ID = "reyes"
	Juno       ID = "juno"
	Slumber    ID = "slumber"
	Crema      ID = "crema"
	Ludwig     ID = "ludwig"
	Aden       ID = "aden"
	Perpetua   ID = "perpetua"
)

// Op is a single CSS filter function.
type Op string

const (
	OpGrayscale  Op = "grayscale"
	OpSepia      Op = "sepia"
	OpInvert     Op = "invert"
	OpBlur       Op = "blur"
	OpBrightness Op = "brightness"
	OpContrast   Op = "contrast"
	OpSaturate   Op = "saturate"
	OpHueRotate  Op = "hue-rotate"
)

// Adjustment is an op with its amount in CSS units: percent for color ops,
// px for blur and degrees for hue-rotate.
type Adjustment struct {
	Op     Op
	Amount float64
}

func (a Adjustment) String() string {
	switch a.Op {
	case OpBlur:
		return fmt.Sprintf("blur(%spx)", formatAmount(a.Amount))
	case OpHueRotate:
		return fmt.Sprintf("hue-rotate(%sdeg)", formatAmount(a.Amount))
	default:
		return fmt.Sprintf("%s(%s%%)", a.Op, formatAmount(a.Amount))
	}
}

// Transform is an ordered list of adjustments. Order matters: the ops do not
// commute in general.
type Transform []Adjustment

func (t Transform) IsIdentity() bool {
	return len(t) == 0
}

// String renders t as a CSS filter expression, "none" for the identity.
func (t Transform) String() string {
	if t.IsIdentity() {
		return "none"
	}
	parts := make([]string, len(t))
	for i, a := range t {
		parts[i] = a.String()
	}
	return strings.Join(parts, " ")
}

// ScaleBlur returns a copy of t with blur radii multiplied by k, for
// rendering at k device pixels per CSS pixel.
func (t Transform) ScaleBlur(k float64) Transform {
	if t.IsIdentity() {
		return nil
	}
	out := make(Transform, len(t))
	copy(out, t)
	for i := range out {
		if out[i].Op == OpBlur {
			out[i].Amount *= k
		}
	}
	return out
}

type Filter struct {
	ID        ID
	Name      string
	Transform Transform
}

var registry = []Filter{
	{ID: None, Name: "Original"},
	{ID: Grayscale, Name: "Grayscale", Transform: Transform{{OpGrayscale, 100}}},
	{ID: Sepia, Name: "Sepia", Transform: Transform{{OpSepia, 100}}},
	{ID: Invert, Name: "Invert", Transform: Transform{{OpInvert, 100}}},
	{ID: Blur, Name: "Blur", Transform: Transform{{OpBlur, 2}}},
	{ID: Brightness, Name: "Brightness", Transform: Transform{{OpBrightness, 150}}},
	{ID: Contrast, Name: "Contrast", Transform: Transform{{OpContrast, 200}}},
	{ID: Clarendon, Name: "Clarendon", Transform: Transform{{OpContrast, 120}, {OpSaturate, 125}, {OpBrightness, 110}}},
	{ID: Gingham, Name: "Gingham", Transform: Transform{{OpBrightness, 105}, {OpHueRotate, 350}}},
	{ID: Moon, Name: "Moon", Transform: Transform{{OpGrayscale, 100}, {OpBrightness, 110}}},
	{ID: Lark, Name: "Lark", Transform: Transform{{OpBrightness, 110}, {OpContrast, 110}, {OpSaturate, 130}}},
	{ID: Reyes, Name: "Reyes", Transform: Transform{{OpSepia, 30}, {OpBrightness, 110}, {OpContrast, 85}, {OpSaturate, 75}}},
	{ID: Juno, Name: "Juno", Transform: Transform{{OpSaturate, 135}, {OpHueRotate, 330}}},
	{ID: Slumber, Name: "Slumber", Transform: Transform{{OpSaturate, 85}, {OpBrightness, 105}}},
	{ID: Crema, Name: "Crema", Transform: Transform{{OpBrightness, 110}, {OpContrast, 90}, {OpSaturate, 150}}},
	{ID: Ludwig, Name: "Ludwig", Transform: Transform{{OpContrast, 105}, {OpBrightness, 105}, {OpSaturate, 105}}},
	{ID: Aden, Name: "Aden", Transform: Transform{{OpBrightness, 115}, {OpSaturate, 140}, {OpSepia, 20}}},
	{ID: Perpetua, Name: "Perpetua", Transform: Transform{{OpBrightness, 110}, {OpContrast, 110}, {OpSaturate, 120}}},
}

var byID = func() map[ID]Filter {
	m := make(map[ID]Filter, len(registry))
	for _, f := range registry {
		m[f.ID] = f
	}
	return m
}()

// Resolve never fails: unknown ids map to the identity transform.
func Resolve(id ID) Transform {
	return byID[id].Transform
}

func Lookup(id ID) (Filter, bool) {
	f, ok := byID[id]
	return f, ok
}

// All returns the filters in panel order.
func All() []Filter {
	out := make([]Filter, len(registry))
	copy(out, registry)
	return out
}

// Parse matches an id or display name, ignoring case.
func Parse(s string) (ID, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	for _, f := range registry {
		if string(f.ID) == norm || strings.ToLower(f.Name) == norm {
			return f.ID, nil
		}
	}
	return "", fmt.Errorf("unknown filter: %s", s)
}

func (id ID) Valid() bool {
	_, ok := byID[id]
	return ok
}

// Apply runs t over img. Consecutive color ops are fused into one pass; blur
// breaks the chain.
func Apply(img image.Image, t Transform) image.Image {
	out := imaging.Clone(img)
	for i := 0; i < len(t); {
		if t[i].Op == OpBlur {
			if t[i].Amount > 0 {
				out = imaging.Blur(out, t[i].Amount)
			}
			i++
			continue
		}
		j := i
		for j < len(t) && t[j].Op != OpBlur {
			j++
		}
		out = applyColorOps(out, t[i:j])
		i = j
	}
	return out
}

type stage func(r, g, b float64) (float64, float64, float64)

func applyColorOps(img *image.NRGBA, ops []Adjustment) *image.NRGBA {
	stages := make([]stage, 0, len(ops))
	for _, a := range ops {
		if s := stageFor(a); s != nil {
			stages = append(stages, s)
		}
	}
	if len(stages) == 0 {
		return img
	}
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		r, g, b := float64(c.R)/255.0, float64(c.G)/255.0, float64(c.B)/255.0
		for _, s := range stages {
			r, g, b = s(r, g, b)
			r, g, b = clamp01(r), clamp01(g), clamp01(b)
		}
		return color.NRGBA{to8(r), to8(g), to8(b), c.A}
	})
}

func stageFor(a Adjustment) stage {
	v := a.Amount / 100.0
	switch a.Op {
	case OpGrayscale:
		return matrixStage(grayscaleMatrix(math.Min(v, 1)))
	case OpSepia:
		return matrixStage(sepiaMatrix(math.Min(v, 1)))
	case OpSaturate:
		return matrixStage(saturateMatrix(v))
	case OpHueRotate:
		return matrixStage(hueRotateMatrix(a.Amount))
	case OpInvert:
		v = math.Min(v, 1)
		return func(r, g, b float64) (float64, float64, float64) {
			return v*(1-r) + (1-v)*r, v*(1-g) + (1-v)*g, v*(1-b) + (1-v)*b
		}
	case OpBrightness:
		return func(r, g, b float64) (float64, float64, float64) {
			return r * v, g * v, b * v
		}
	case OpContrast:
		return func(r, g, b float64) (float64, float64, float64) {
			return (r-0.5)*v + 0.5, (g-0.5)*v + 0.5, (b-0.5)*v + 0.5
		}
	}
	return nil
}

func matrixStage(m [9]float64) stage {
	return func(r, g, b float64) (float64, float64, float64) {
		return m[0]*r + m[1]*g + m[2]*b,
			m[3]*r + m[4]*g + m[5]*b,
			m[6]*r + m[7]*g + m[8]*b
	}
}

func grayscaleMatrix(a float64) [9]float64 {
	s := 1 - a
	return [9]float64{
		0.2126 + 0.7874*s, 0.7152 - 0.7152*s, 0.0722 - 0.0722*s,
		0.2126 - 0.2126*s, 0.7152 + 0.2848*s, 0.0722 - 0.0722*s,
		0.2126 - 0.2126*s, 0.7152 - 0.7152*s, 0.0722 + 0.9278*s,
	}
}

func sepiaMatrix(a float64) [9]float64 {
	s := 1 - a
	return [9]float64{
		0.393 + 0.607*s, 0.769 - 0.769*s, 0.189 - 0.189*s,
		0.349 - 0.349*s, 0.686 + 0.314*s, 0.168 - 0.168*s,
		0.272 - 0.272*s, 0.534 - 0.534*s, 0.131 + 0.869*s,
	}
}

func saturateMatrix(s float64) [9]float64 {
	return [9]float64{
		0.213 + 0.787*s, 0.715 - 0.715*s, 0.072 - 0.072*s,
		0.213 - 0.213*s, 0.715 + 0.285*s, 0.072 - 0.072*s,
		0.213 - 0.213*s, 0.715 - 0.715*s, 0.072 + 0.928*s,
	}
}

func hueRotateMatrix(deg float64) [9]float64 {
	rad := deg * math.Pi / 180.0
	c, s := math.Cos(rad), math.Sin(rad)
	return [9]float64{
		0.213 + c*0.787 - s*0.213, 0.715 - c*0.715 - s*0.715, 0.072 - c*0.072 + s*0.928,
		0.213 - c*0.213 + s*0.143, 0.715 + c*0.285 + s*0.140, 0.072 - c*0.072 - s*0.283,
		0.213 - c*0.213 - s*0.787, 0.715 - c*0.715 + s*0.715, 0.072 + c*0.928 + s*0.072,
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func to8(v float64) uint8 {
	return uint8(math.Round(v * 255.0))
}

func formatAmount(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%d", int(v))
	}
	return fmt.Sprintf("%g", v)
}
