package filters

import (
	"hash/fnv"
	"image"
	"image/color"
	"testing"
)

func createTestImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r := uint8((x * 255) / max(width, 1))  //nolint:gosec // test image generation
			g := uint8((y * 255) / max(height, 1)) //nolint:gosec // test image generation
			b := uint8(128)
			img.Set(x, y, color.NRGBA{r, g, b, 255})
		}
	}
	return img
}

func imageFingerprint(img image.Image) uint64 {
	h := fnv.New64a()
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, b, a := img.At(x, y).RGBA()
			_, _ = h.Write([]byte{byte(r >> 8), byte(g >> 8), byte(b >> 8), byte(a >> 8)})
		}
	}
	return h.Sum64()
}

func nrgbaAt(img image.Image, x, y int) color.NRGBA {
	return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

func TestRegistry(t *testing.T) {
	all := All()
	if len(all) != 18 {
		t.Fatalf("All() returned %d filters, want 18", len(all))
	}
	if all[0].ID != None {
		t.Errorf("All()[0] = %q, want %q", all[0].ID, None)
	}

	seen := map[ID]bool{}
	for _, f := range all {
		if seen[f.ID] {
			t.Errorf("duplicate filter id %q", f.ID)
		}
		seen[f.ID] = true
		if f.Name == "" {
			t.Errorf("filter %q has no name", f.ID)
		}
		if !f.ID.Valid() {
			t.Errorf("ID(%q).Valid() = false", f.ID)
		}
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		id   ID
		want string
	}{
		{None, "none"},
		{ID("does-not-exist"), "none"},
		{ID(""), "none"},
		{Grayscale, "grayscale(100%)"},
		{Blur, "blur(2px)"},
		{Contrast, "contrast(200%)"},
		{Clarendon, "contrast(120%) saturate(125%) brightness(110%)"},
		{Gingham, "brightness(105%) hue-rotate(350deg)"},
		{Reyes, "sepia(30%) brightness(110%) contrast(85%) saturate(75%)"},
		{Aden, "brightness(115%) saturate(140%) sepia(20%)"},
	}

	for _, tt := range tests {
		t.Run(string(tt.id), func(t *testing.T) {
			if got := Resolve(tt.id).String(); got != tt.want {
				t.Errorf("Resolve(%q).String() = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}

func TestResolveUnknownIsIdentity(t *testing.T) {
	if !Resolve(ID("vintage-2000")).IsIdentity() {
		t.Error("Resolve(unknown) should be the identity transform")
	}
	if !Resolve(None).IsIdentity() {
		t.Error("Resolve(none) should be the identity transform")
	}
}

func TestApplyIdentity(t *testing.T) {
	img := createTestImage(40, 30)
	out := Apply(img, Resolve(None))
	if imageFingerprint(out) != imageFingerprint(img) {
		t.Error("Apply(identity) changed pixels")
	}
	if out == image.Image(img) {
		t.Error("Apply() should not return the input image itself")
	}
}

func TestApplyGrayscale(t *testing.T) {
	img := createTestImage(20, 20)
	out := Apply(img, Resolve(Grayscale))
	for _, pt := range []image.Point{{0, 0}, {10, 5}, {19, 19}} {
		c := nrgbaAt(out, pt.X, pt.Y)
		if c.R != c.G || c.G != c.B {
			t.Errorf("grayscale pixel at %v = %v, want equal channels", pt, c)
		}
	}
}

func TestApplyInvert(t *testing.T) {
	img := createTestImage(20, 20)
	out := Apply(img, Resolve(Invert))
	for _, pt := range []image.Point{{0, 0}, {7, 13}, {19, 19}} {
		in := img.NRGBAAt(pt.X, pt.Y)
		got := nrgbaAt(out, pt.X, pt.Y)
		want := color.NRGBA{255 - in.R, 255 - in.G, 255 - in.B, in.A}
		if got != want {
			t.Errorf("invert pixel at %v = %v, want %v", pt, got, want)
		}
	}
}

func TestApplyBrightnessAndContrastClamp(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{100, 200, 0, 255})
	img.SetNRGBA(1, 0, color.NRGBA{255, 255, 255, 128})

	bright := Apply(img, Resolve(Brightness))
	if got := nrgbaAt(bright, 0, 0); got != (color.NRGBA{150, 255, 0, 255}) {
		t.Errorf("brightness(150%%) = %v, want {150 255 0 255}", got)
	}

	contrast := Apply(img, Resolve(Contrast))
	if got := nrgbaAt(contrast, 1, 0); got != (color.NRGBA{255, 255, 255, 128}) {
		t.Errorf("contrast(200%%) on white = %v, want {255 255 255 128}", got)
	}
}

func TestApplyNeutralAmounts(t *testing.T) {
	img := createTestImage(16, 16)

	tests := []struct {
		name string
		t    Transform
	}{
		{"saturate 100", Transform{{OpSaturate, 100}}},
		{"hue-rotate 360", Transform{{OpHueRotate, 360}}},
		{"brightness 100", Transform{{OpBrightness, 100}}},
		{"sepia 0", Transform{{OpSepia, 0}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Apply(img, tt.t)
			for y := 0; y < 16; y += 5 {
				for x := 0; x < 16; x += 5 {
					in, got := img.NRGBAAt(x, y), nrgbaAt(out, x, y)
					if absDiff(in.R, got.R) > 1 || absDiff(in.G, got.G) > 1 || absDiff(in.B, got.B) > 1 {
						t.Errorf("pixel (%d,%d) = %v, want ~%v", x, y, got, in)
					}
				}
			}
		})
	}
}

func TestApplyOrderMatters(t *testing.T) {
	img := createTestImage(16, 16)
	a := Apply(img, Transform{{OpSepia, 100}, {OpInvert, 100}})
	b := Apply(img, Transform{{OpInvert, 100}, {OpSepia, 100}})
	if imageFingerprint(a) == imageFingerprint(b) {
		t.Error("sepia+invert and invert+sepia produced identical images")
	}
}

func TestApplyPreservesSize(t *testing.T) {
	img := createTestImage(64, 48)
	for _, f := range All() {
		t.Run(string(f.ID), func(t *testing.T) {
			out := Apply(img, f.Transform)
			if out.Bounds().Dx() != 64 || out.Bounds().Dy() != 48 {
				t.Errorf("Apply(%s) size = %dx%d, want 64x48", f.ID, out.Bounds().Dx(), out.Bounds().Dy())
			}
		})
	}
}

func TestApplyWithEmptyImage(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 0, 0))
	if out := Apply(img, Resolve(Clarendon)); out == nil {
		t.Error("Apply() returned nil for empty image")
	}
}

func BenchmarkApply(b *testing.B) {
	img := createTestImage(200, 200)
	t := Resolve(Reyes)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Apply(img, t)
	}
}

func TestScaleBlur(t *testing.T) {
	orig := Transform{{OpBrightness, 110}, {OpBlur, 2}}
	got := orig.ScaleBlur(3)
	if got.String() != "brightness(110%) blur(6px)" {
		t.Errorf("ScaleBlur(3) = %q", got.String())
	}
	if orig[1].Amount != 2 {
		t.Error("ScaleBlur() modified the receiver")
	}
	if Resolve(None).ScaleBlur(2) != nil {
		t.Error("ScaleBlur() of identity should stay identity")
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    ID
		wantErr bool
	}{
		{"clarendon", Clarendon, false},
		{" Juno ", Juno, false},
		{"Original", None, false},
		{"valencia", "", true},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("Parse(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
