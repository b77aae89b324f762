package layouts

import "testing"

func TestSlotCount(t *testing.T) {
	tests := []struct {
		layout Layout
		want   int
	}{
		{Layout1x1, 1},
		{Layout1x2, 2},
		{Layout1x3, 3},
		{Layout1x4, 4},
		{Layout2x2, 4},
		{Layout("3x3"), 1},
	}

	for _, tt := range tests {
		t.Run(string(tt.layout), func(t *testing.T) {
			if got := SlotCount(tt.layout); got != tt.want {
				t.Errorf("SlotCount(%q) = %d, want %d", tt.layout, got, tt.want)
			}
		})
	}
}

func TestGridShape(t *testing.T) {
	tests := []struct {
		layout   Layout
		wantRows int
		wantCols int
	}{
		{Layout1x1, 1, 1},
		{Layout1x2, 2, 1},
		{Layout1x3, 3, 1},
		{Layout1x4, 4, 1},
		{Layout2x2, 2, 2},
	}

	for _, tt := range tests {
		t.Run(string(tt.layout), func(t *testing.T) {
			rows, cols := GridShape(tt.layout)
			if rows != tt.wantRows || cols != tt.wantCols {
				t.Errorf("GridShape(%q) = %dx%d, want %dx%d", tt.layout, rows, cols, tt.wantRows, tt.wantCols)
			}
		})
	}
}

func TestSpecs(t *testing.T) {
	for _, l := range All() {
		t.Run(string(l), func(t *testing.T) {
			spec := Get(l)
			if spec.Slots < 1 || spec.Slots > 4 {
				t.Errorf("Slots = %d, want 1..4", spec.Slots)
			}
			if spec.Rows*spec.Cols != spec.Slots {
				t.Errorf("Rows*Cols = %d, want %d", spec.Rows*spec.Cols, spec.Slots)
			}
			w, h := AspectRatio(l)
			if w*spec.Rows != h*spec.Cols {
				t.Errorf("AspectRatio() = %d:%d does not match %dx%d grid", w, h, spec.Rows, spec.Cols)
			}
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Layout
		wantErr bool
	}{
		{"1x1", Layout1x1, false},
		{"2x2", Layout2x2, false},
		{"2×2", Layout2x2, false},
		{" 1X4 ", Layout1x4, false},
		{"3x3", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if (err != nil) != tt.wantErr {
				t.Errorf("Parse(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestAll(t *testing.T) {
	all := All()
	if len(all) != 5 {
		t.Fatalf("All() returned %d layouts, want 5", len(all))
	}
	all[0] = Layout("mutated")
	if All()[0] != Layout1x1 {
		t.Error("All() exposes the internal order slice")
	}
}
