package ocr

import (
	"strings"

	"balloon/internal/harvest"
	"balloon/pkg/models"
)

// ResultTokens converts a recognition result into harvest tokens. Words with
// boxes are placed in a 1000x1000 page space so they cluster like native text.
// Without word boxes every non-empty line of the full text becomes a token
// covering the whole page.
func ResultTokens(r *Result) []harvest.Token {
	if r == nil {
		return nil
	}

	var tokens []harvest.Token
	if len(r.Words) > 0 {
		for _, w := range r.Words {
			if strings.TrimSpace(w.Text) == "" {
				continue
			}
			tokens = append(tokens, harvest.Token{
				Text:       w.Text,
				X:          w.Region.XMin,
				Y:          models.RegionScale - w.Region.YMax,
				Width:      w.Region.XMax - w.Region.XMin,
				Height:     w.Region.YMax - w.Region.YMin,
				Region:     w.Region,
				Confidence: w.Confidence,
				Source:     models.SourceRaster,
			})
		}
		return tokens
	}

	for _, line := range strings.Split(r.Text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		tokens = append(tokens, harvest.Token{
			Text:       line,
			Region:     models.FullPage,
			Confidence: r.Confidence,
			Source:     models.SourceRaster,
		})
	}
	return tokens
}
