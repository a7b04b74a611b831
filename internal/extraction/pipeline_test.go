package extraction

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"balloon/internal/harvest"
	"balloon/internal/ocr"
	"balloon/internal/registry"
	"balloon/internal/structure"
	"balloon/pkg/models"
)

type fakeSource struct {
	pages     [][]harvest.Token
	rasterErr error
}

func (s *fakeSource) PageCount() (int, error) { return len(s.pages), nil }

func (s *fakeSource) Harvest(index int) (*harvest.Page, error) {
	return &harvest.Page{Index: index, Width: 792, Height: 612, Tokens: s.pages[index]}, nil
}

func (s *fakeSource) Raster(index int) ([]byte, error) {
	if s.rasterErr != nil {
		return nil, s.rasterErr
	}
	return []byte("png"), nil
}

type fakeRecognizer struct {
	calls atomic.Int32
	words []ocr.Word
}

func (r *fakeRecognizer) Recognize(ctx context.Context, img []byte) (*ocr.Result, error) {
	r.calls.Add(1)
	return &ocr.Result{Words: r.words, Confidence: 0.9, Provider: "fake"}, nil
}

func (r *fakeRecognizer) Close() error { return nil }

// nativeLines returns n prefilter-passing tokens, one per line.
func nativeLines(n int) []harvest.Token {
	tokens := make([]harvest.Token, n)
	for i := range tokens {
		y := float64(500 - i*30)
		tokens[i] = harvest.Token{
			Text:       fmt.Sprintf("%d.000", i+1),
			X:          100,
			Y:          y,
			Width:      30,
			Height:     10,
			Region:     models.BoundingRegion{XMin: 100, YMin: 1000 - y, XMax: 140, YMax: 1010 - y},
			Confidence: 1,
			Source:     models.SourceNative,
		}
	}
	return tokens
}

func newPipeline(rec ocr.Recognizer, cfg Config) *Pipeline {
	return New(rec, structure.New(nil, structure.Config{}), cfg)
}

func TestNeedsRaster(t *testing.T) {
	for n, want := range map[int]bool{0: true, 3: true, 4: true, 5: false, 6: false} {
		if got := NeedsRaster(n); got != want {
			t.Errorf("NeedsRaster(%d) = %v, want %v", n, got, want)
		}
	}
}

func TestRun_RasterFallback(t *testing.T) {
	raster := []ocr.Word{{Text: "R.125", Confidence: 0.9, Region: models.BoundingRegion{XMin: 100, YMin: 100, XMax: 200, YMax: 130}}}

	tests := []struct {
		name         string
		native       int
		wantCalls    int32
		wantRaster   bool
		wantFeatures int
	}{
		{name: "three native tokens fall back", native: 3, wantCalls: 1, wantRaster: true, wantFeatures: 4},
		{name: "six native tokens stay native", native: 6, wantCalls: 0, wantRaster: false, wantFeatures: 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fakeRecognizer{words: raster}
			src := &fakeSource{pages: [][]harvest.Token{nativeLines(tt.native)}}
			reg := registry.New()

			summary, err := newPipeline(rec, Config{}).Run(context.Background(), src, reg)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if got := rec.calls.Load(); got != tt.wantCalls {
				t.Errorf("recognizer calls = %d, want %d", got, tt.wantCalls)
			}
			page := summary.Pages[0]
			if page.RasterUsed != tt.wantRaster {
				t.Errorf("RasterUsed = %v, want %v", page.RasterUsed, tt.wantRaster)
			}
			if page.NativeTokens != tt.native {
				t.Errorf("NativeTokens = %d, want %d", page.NativeTokens, tt.native)
			}
			if reg.Len() != tt.wantFeatures {
				t.Errorf("registry has %d features, want %d", reg.Len(), tt.wantFeatures)
			}
		})
	}
}

func TestRun_RasterSourceMarked(t *testing.T) {
	rec := &fakeRecognizer{words: []ocr.Word{{Text: "⌀.250", Confidence: 0.8, Region: models.BoundingRegion{XMin: 10, YMin: 10, XMax: 90, YMax: 40}}}}
	src := &fakeSource{pages: [][]harvest.Token{nil}}
	reg := registry.New()

	if _, err := newPipeline(rec, Config{}).Run(context.Background(), src, reg); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	features := reg.List()
	if len(features) != 1 {
		t.Fatalf("got %d features, want 1", len(features))
	}
	f := features[0]
	if f.Source != models.SourceRaster || f.Confidence != 0.8 {
		t.Errorf("feature source/confidence = %s/%v, want raster/0.8", f.Source, f.Confidence)
	}
	if f.Spec == nil || f.Spec.Subtype != models.SubtypeDiameter {
		t.Errorf("feature spec = %+v, want diameter", f.Spec)
	}
}

func TestRun_ConcurrentPagesAppendInOrder(t *testing.T) {
	const pages, perPage = 8, 6
	src := &fakeSource{}
	for i := 0; i < pages; i++ {
		src.pages = append(src.pages, nativeLines(perPage))
	}
	reg := registry.New()

	summary, err := newPipeline(nil, Config{PageWorkers: 4}).Run(context.Background(), src, reg)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Features != pages*perPage {
		t.Fatalf("Features = %d, want %d", summary.Features, pages*perPage)
	}

	var gotIDs, wantIDs []int
	for i, f := range reg.List() {
		gotIDs = append(gotIDs, f.ID)
		wantIDs = append(wantIDs, i+1)
		if wantPage := i/perPage + 1; f.Page != wantPage {
			t.Errorf("feature %d on page %d, want %d", f.ID, f.Page, wantPage)
		}
	}
	if diff := cmp.Diff(wantIDs, gotIDs); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
	for i, p := range summary.Pages {
		if want := i*perPage + 1; p.FirstID != want {
			t.Errorf("page %d FirstID = %d, want %d", p.Page, p.FirstID, want)
		}
	}
}

func TestRun_RasterFailureIsSoft(t *testing.T) {
	rec := &fakeRecognizer{}
	src := &fakeSource{pages: [][]harvest.Token{nativeLines(2)}, rasterErr: errors.New("no image")}
	reg := registry.New()

	summary, err := newPipeline(rec, Config{}).Run(context.Background(), src, reg)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Pages[0].Err == "" {
		t.Error("expected a page error to be reported")
	}
	if reg.Len() != 2 {
		t.Errorf("registry has %d features, want 2", reg.Len())
	}
	if rec.calls.Load() != 0 {
		t.Error("recognizer should not run without an image")
	}
}

func TestRun_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &fakeSource{pages: [][]harvest.Token{nativeLines(6), nativeLines(6)}}
	reg := registry.New()

	_, err := newPipeline(nil, Config{}).Run(ctx, src, reg)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if reg.Len() != 0 {
		t.Errorf("registry has %d features after cancellation, want 0", reg.Len())
	}
}

func TestRun_PageSelection(t *testing.T) {
	src := &fakeSource{pages: [][]harvest.Token{nativeLines(6), nativeLines(7), nativeLines(8)}}

	reg := registry.New()
	summary, err := newPipeline(nil, Config{Pages: []int{3, 2, 3}}).Run(context.Background(), src, reg)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	var got []int
	for _, p := range summary.Pages {
		got = append(got, p.Page)
	}
	if diff := cmp.Diff([]int{2, 3}, got); diff != "" {
		t.Errorf("pages mismatch (-want +got):\n%s", diff)
	}
	if reg.Len() != 15 {
		t.Errorf("registry has %d features, want 15", reg.Len())
	}

	if _, err := newPipeline(nil, Config{Pages: []int{4}}).Run(context.Background(), src, registry.New()); err == nil {
		t.Error("expected an error for an out-of-range page")
	}
}
