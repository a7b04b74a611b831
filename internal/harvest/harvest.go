// Package harvest extracts positioned text tokens from the native content
// stream of PDF drawing pages.
//
// Tokens taken from the content stream carry no recognition uncertainty. A page
// without native text yields an empty token list, which is the signal for the
// raster fallback rather than an error.
package harvest

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/tsawler/tabula/pages"
	"github.com/tsawler/tabula/reader"

	"balloon/internal/logger"
	"balloon/pkg/models"
)

// Token is one positioned piece of page text.
type Token struct {
	Text string `json:"text"`

	// Page space in points, origin bottom-left, (X, Y) is the baseline start.
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`

	Region     models.BoundingRegion `json:"region"`
	Confidence float64               `json:"confidence"`
	Source     models.FeatureSource  `json:"source"`
	FontSize   float64               `json:"font_size,omitempty"`
}

// Page is the harvest result for one page.
type Page struct {
	Index  int     `json:"index"` // 0-based
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Tokens []Token `json:"tokens"`
}

// Document wraps a PDF reader. The underlying reader is not safe for
// concurrent use, so every access goes through mu.
type Document struct {
	mu   sync.Mutex
	r    *reader.Reader
	path string
	log  zerolog.Logger
}

// Open opens the PDF at path.
func Open(path string) (*Document, error) {
	const op = "Open"

	r, err := reader.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", op, path, err)
	}
	d := NewDocument(r)
	d.path = path
	d.log = logger.WithDrawing(path).With().Str("component", "harvest").Logger()
	return d, nil
}

// NewDocument wraps an already opened reader.
func NewDocument(r *reader.Reader) *Document {
	return &Document{r: r, log: logger.WithComponent("harvest")}
}

// Path returns the file the document was opened from.
func (d *Document) Path() string {
	return d.path
}

// PageCount returns the number of pages.
func (d *Document) PageCount() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.r.PageCount()
}

// Harvest extracts the native text tokens of the page at index (0-based).
func (d *Document) Harvest(index int) (*Page, error) {
	const op = "Harvest"

	d.mu.Lock()
	defer d.mu.Unlock()

	pg, err := d.r.GetPage(index)
	if err != nil {
		return nil, fmt.Errorf("%s: page %d: %w", op, index+1, err)
	}
	width, height := pageSize(pg)

	frags, err := d.r.ExtractTextFragments(pg)
	if err != nil {
		// An unreadable content stream is treated like a page without text.
		d.log.Warn().Err(err).Int("page", index+1).Msg("Failed to extract native text")
		frags = nil
	}

	page := &Page{Index: index, Width: width, Height: height}
	for _, f := range frags {
		if strings.TrimSpace(f.Text) == "" {
			continue
		}
		page.Tokens = append(page.Tokens, Token{
			Text:       f.Text,
			X:          f.X,
			Y:          f.Y,
			Width:      f.Width,
			Height:     f.Height,
			Region:     models.NormalizeRegion(f.X, f.Y, f.Width, f.Height, width, height),
			Confidence: 1.0,
			Source:     models.SourceNative,
			FontSize:   f.FontSize,
		})
	}

	d.log.Debug().
		Int("page", index+1).
		Int("tokens", len(page.Tokens)).
		Msg("Harvested native text")

	return page, nil
}

// Raster returns the largest embedded image on the page as PNG.
func (d *Document) Raster(index int) ([]byte, error) {
	const op = "Raster"

	d.mu.Lock()
	defer d.mu.Unlock()

	pg, err := d.r.GetPage(index)
	if err != nil {
		return nil, fmt.Errorf("%s: page %d: %w", op, index+1, err)
	}
	images, err := d.r.ExtractPageImages(pg)
	if err != nil {
		return nil, fmt.Errorf("%s: page %d: %w", op, index+1, err)
	}
	if len(images) == 0 {
		return nil, nil
	}

	best := 0
	for i := range images {
		if images[i].Width*images[i].Height > images[best].Width*images[best].Height {
			best = i
		}
	}
	data, err := images[best].ToPNG()
	if err != nil {
		return nil, fmt.Errorf("%s: page %d: encode %s: %w", op, index+1, images[best].Name, err)
	}
	return data, nil
}

// Close releases the underlying file.
func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.r.Close()
}

func pageSize(pg *pages.Page) (float64, float64) {
	w, err := pg.Width()
	if err != nil {
		return 0, 0
	}
	h, err := pg.Height()
	if err != nil {
		return 0, 0
	}
	return w, h
}

// CountNonEmpty returns the number of tokens with visible text.
func CountNonEmpty(tokens []Token) int {
	n := 0
	for _, t := range tokens {
		if strings.TrimSpace(t.Text) != "" {
			n++
		}
	}
	return n
}
