// Package matching aligns measured report records with drawing features.
// Each (record, feature) pair is scored by a list of named rules; the best
// pairs at or above a confidence floor are assigned automatically and the
// rest wait for a manual decision inside an ImportOperation.
package matching

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"balloon/internal/logger"
	"balloon/pkg/models"
)

// Config holds the scoring rules and the auto-match floor.
type Config struct {
	Rules []Rule
	Floor int
}

// NewConfig builds the default rule set with the given nominal tolerance and floor.
func NewConfig(nominalTolerance float64, floor int) Config {
	return Config{
		Rules: []Rule{
			NominalProximityRule{Weight: DefaultNominalWeight, Tolerance: nominalTolerance},
			IdentifierRule{Weight: DefaultIdentifierWeight, Prefixes: DefaultLabelPrefixes},
			TolerancePairRule{Weight: DefaultToleranceWeight},
		},
		Floor: floor,
	}
}

// DefaultConfig returns 50/30/20 weights, a 0.002 nominal tolerance and a floor of 40.
func DefaultConfig() Config {
	return NewConfig(DefaultNominalTolerance, DefaultFloor)
}

// Matrix holds the score of every (record, feature) pair. Scores[i][j] is
// record i against the feature with id FeatureIDs[j].
type Matrix struct {
	FeatureIDs []int
	Scores     [][]int
}

// Matcher scores and resolves records against features.
type Matcher struct {
	config Config
	log    zerolog.Logger
}

// New creates a Matcher. An empty rule list selects the default rules.
func New(config Config) *Matcher {
	if len(config.Rules) == 0 {
		config.Rules = DefaultConfig().Rules
	}
	return &Matcher{
		config: config,
		log:    logger.WithComponent("matching"),
	}
}

// Floor returns the auto-match floor.
func (m *Matcher) Floor() int {
	return m.config.Floor
}

// Score returns the total score of one pair.
func (m *Matcher) Score(rec *models.MeasuredFeatureRecord, f *models.Feature) int {
	total := 0
	for _, r := range m.config.Rules {
		total += r.Score(rec, f)
	}
	return total
}

func (m *Matcher) ruleNames() []string {
	names := make([]string, len(m.config.Rules))
	for i, r := range m.config.Rules {
		names[i] = r.Name()
	}
	return names
}

// ScoreAll scores every pair, parallel across records. Cancellation is
// checked between records.
func (m *Matcher) ScoreAll(ctx context.Context, records []models.MeasuredFeatureRecord, features []models.Feature) (*Matrix, error) {
	const op = "ScoreAll"

	sorted := sortedByID(features)
	matrix := &Matrix{
		FeatureIDs: make([]int, len(sorted)),
		Scores:     make([][]int, len(records)),
	}
	for j, f := range sorted {
		matrix.FeatureIDs[j] = f.ID
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range records {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			row := make([]int, len(sorted))
			for j := range sorted {
				row[j] = m.Score(&records[i], &sorted[j])
			}
			matrix.Scores[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, WrapMatchError(op, err, "scoring canceled")
	}
	if err := ctx.Err(); err != nil {
		return nil, WrapMatchError(op, err, "scoring canceled")
	}

	m.log.Debug().
		Int("records", len(records)).
		Int("features", len(sorted)).
		Strs("rules", m.ruleNames()).
		Msg("Scored all pairs")
	return matrix, nil
}

type candidate struct {
	record    int
	featureID int
	score     int
}

// Resolve assigns features to records. Pairs at or above the floor are taken
// greedily by descending score, ties going to the earlier record and then to
// the lowest feature id, so each record gets its best free feature and each
// feature goes to at most one record. Records left over are unmatched.
func (m *Matcher) Resolve(matrix *Matrix) []models.MatchAssignment {
	assignments := make([]models.MatchAssignment, len(matrix.Scores))
	var candidates []candidate
	for i, row := range matrix.Scores {
		assignments[i] = models.MatchAssignment{RecordIndex: i}
		best := 0
		for j, score := range row {
			if score > best {
				best = score
			}
			if score > 0 && score >= m.config.Floor {
				candidates = append(candidates, candidate{record: i, featureID: matrix.FeatureIDs[j], score: score})
			}
		}
		assignments[i].Score = best
		switch {
		case best == 0:
			assignments[i].Reason = "no matching signal"
		case best < m.config.Floor:
			assignments[i].Reason = fmt.Sprintf("best score %d below floor %d", best, m.config.Floor)
		}
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		ca, cb := candidates[a], candidates[b]
		if ca.score != cb.score {
			return ca.score > cb.score
		}
		if ca.record != cb.record {
			return ca.record < cb.record
		}
		return ca.featureID < cb.featureID
	})

	taken := make(map[int]int) // feature id -> record
	for _, c := range candidates {
		if assignments[c.record].Matched() {
			continue
		}
		if owner, ok := taken[c.featureID]; ok {
			if assignments[c.record].Reason == "" {
				assignments[c.record].Reason = fmt.Sprintf("feature %d taken by record %d", c.featureID, owner)
			}
			continue
		}
		taken[c.featureID] = c.record
		assignments[c.record] = models.MatchAssignment{
			RecordIndex: c.record,
			FeatureID:   c.featureID,
			Score:       c.score,
		}
	}

	matched := 0
	for _, a := range assignments {
		if a.Matched() {
			matched++
		}
	}
	m.log.Info().
		Int("records", len(assignments)).
		Int("matched", matched).
		Int("unmatched", len(assignments)-matched).
		Int("floor", m.config.Floor).
		Msg("Resolved assignments")
	return assignments
}

func sortedByID(features []models.Feature) []models.Feature {
	out := append([]models.Feature(nil), features...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
