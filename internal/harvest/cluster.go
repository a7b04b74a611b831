package harvest

import (
	"math"
	"sort"
	"strings"
)

const (
	// baselineTolerance is the fraction of the smaller glyph height two
	// tokens may differ by and still share a baseline.
	baselineTolerance = 0.35

	// maxGap is the horizontal gap, in glyph heights, bridged by a cluster.
	maxGap = 1.2

	// spaceGap is the gap, in glyph heights, above which a space is inserted.
	spaceGap = 0.2
)

// Cluster merges tokens that sit on the same baseline and are horizontally
// adjacent, so a callout split across fragments ("4X", "⌀.250", "±.005")
// reaches the structurer as one string. Tokens without page-space geometry
// (recognized lines) pass through unchanged. Output is in reading order.
func Cluster(tokens []Token) []Token {
	var placed, loose []Token
	for _, t := range tokens {
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		if t.Height <= 0 {
			loose = append(loose, t)
			continue
		}
		placed = append(placed, t)
	}

	sort.SliceStable(placed, func(i, j int) bool { return placed[i].Y > placed[j].Y })

	var out []Token
	for _, line := range lines(placed) {
		sort.SliceStable(line, func(i, j int) bool { return line[i].X < line[j].X })
		start := len(out)
		for _, t := range line {
			if n := len(out); n > start && adjacent(out[n-1], t) {
				out[n-1] = merge(out[n-1], t)
				continue
			}
			out = append(out, t)
		}
	}
	return append(out, loose...)
}

// lines groups tokens sorted top to bottom into baseline rows.
func lines(sorted []Token) [][]Token {
	var rows [][]Token
	for _, t := range sorted {
		if n := len(rows); n > 0 && sameBaseline(rows[n-1][0], t) {
			rows[n-1] = append(rows[n-1], t)
			continue
		}
		rows = append(rows, []Token{t})
	}
	return rows
}

func sameBaseline(a, b Token) bool {
	h := math.Min(a.Height, b.Height)
	return math.Abs(a.Y-b.Y) <= h*baselineTolerance
}

func adjacent(prev, next Token) bool {
	if !sameBaseline(prev, next) {
		return false
	}
	gap := next.X - (prev.X + prev.Width)
	h := math.Max(prev.Height, next.Height)
	return gap <= h*maxGap && gap >= -h
}

func merge(a, b Token) Token {
	gap := b.X - (a.X + a.Width)
	sep := ""
	if gap > math.Max(a.Height, b.Height)*spaceGap {
		sep = " "
	}
	right := math.Max(a.X+a.Width, b.X+b.Width)
	bottom := math.Min(a.Y, b.Y)
	top := math.Max(a.Y+a.Height, b.Y+b.Height)

	m := a
	m.Text = strings.TrimRight(a.Text, " ") + sep + strings.TrimLeft(b.Text, " ")
	m.Y = bottom
	m.Width = right - a.X
	m.Height = top - bottom
	m.Region = a.Region.Union(b.Region)
	m.Confidence = math.Min(a.Confidence, b.Confidence)
	return m
}
