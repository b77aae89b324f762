package layouts

import (
	"fmt"
	"strings"
)

type Layout string

const (
	Layout1x1 Layout = "1x1"
	Layout1x2 Layout = "1x2"
	Layout1x3 Layout = "1x3"
	Layout1x4 Layout = "1x4"
	Layout2x2 Layout = "2x2"
)

// Spec describes the grid a layout arranges photos into. Aspect is the
// width:height ratio of the whole grid.
type Spec struct {
	Slots  int
	Rows   int
	Cols   int
	Aspect [2]int
}

var specs = map[Layout]Spec{
	Layout1x1: {Slots: 1, Rows: 1, Cols: 1, Aspect: [2]int{1, 1}},
	Layout1x2: {Slots: 2, Rows: 2, Cols: 1, Aspect: [2]int{1, 2}},
	Layout1x3: {Slots: 3, Rows: 3, Cols: 1, Aspect: [2]int{1, 3}},
	Layout1x4: {Slots: 4, Rows: 4, Cols: 1, Aspect: [2]int{1, 4}},
	Layout2x2: {Slots: 4, Rows: 2, Cols: 2, Aspect: [2]int{1, 1}},
}

var order = []Layout{Layout1x1, Layout1x2, Layout1x3, Layout1x4, Layout2x2}

// Get returns the spec for l. Values outside the closed set fall back to 1x1.
func Get(l Layout) Spec {
	if spec, ok := specs[l]; ok {
		return spec
	}
	return specs[Layout1x1]
}

func SlotCount(l Layout) int {
	return Get(l).Slots
}

func GridShape(l Layout) (rows, cols int) {
	spec := Get(l)
	return spec.Rows, spec.Cols
}

func AspectRatio(l Layout) (w, h int) {
	spec := Get(l)
	return spec.Aspect[0], spec.Aspect[1]
}

func (l Layout) Valid() bool {
	_, ok := specs[l]
	return ok
}

func (l Layout) String() string {
	return string(l)
}

// Parse accepts "2x2" as well as the "2×2" form shown in labels.
func Parse(s string) (Layout, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, "×", "x")
	l := Layout(norm)
	if !l.Valid() {
		return "", fmt.Errorf("unknown layout: %s (valid: %s)", s, strings.Join(names(), ", "))
	}
	return l, nil
}

func All() []Layout {
	out := make([]Layout, len(order))
	copy(out, order)
	return out
}

func names() []string {
	out := make([]string, len(order))
	for i, l := range order {
		out[i] = string(l)
	}
	return out
}
