package structure

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/sashabaranov/go-openai"

	"balloon/pkg/models"
)

// fakeClient answers from a table keyed by callout text.
type fakeClient struct {
	responses map[string]string
	delay     time.Duration

	mu      sync.Mutex
	active  int
	maxSeen int
	calls   atomic.Int32
}

func (c *fakeClient) Structure(ctx context.Context, text, _ string) ([]byte, error) {
	c.calls.Add(1)
	c.mu.Lock()
	c.active++
	if c.active > c.maxSeen {
		c.maxSeen = c.active
	}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.active--
		c.mu.Unlock()
	}()

	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	resp, ok := c.responses[text]
	if !ok {
		return nil, errors.New("no canned response")
	}
	return []byte(resp), nil
}

func TestStructureSemanticEnforcesRules(t *testing.T) {
	client := &fakeClient{responses: map[string]string{
		"⌀.500±.005": `{"nominal": 0.5, "plus_tolerance": 0.005, "minus_tolerance": -0.005,
			"units": "unspecified", "tolerance_kind": "bilateral", "subtype": "Linear"}`,
		"⌖ ⌀.010 A B": `{"tolerance_zone": 0.01, "datums": ["A", "B"], "units": "inch",
			"tolerance_kind": "none", "subtype": "Diameter", "is_gdt": false}`,
		"10.05-10.00 mm": `{"upper_limit": 10.0, "lower_limit": 10.05, "units": "inch",
			"tolerance_kind": "limit", "subtype": "Linear"}`,
	}}
	s := New(client, Config{Workers: 2, Timeout: time.Second})

	tests := []struct {
		text string
		want *models.DimensionalSpecification
	}{
		{
			text: "⌀.500±.005",
			want: &models.DimensionalSpecification{
				Nominal: f(0.5), PlusTolerance: f(0.005), MinusTolerance: f(0.005),
				Units: models.UnitsInch, ToleranceKind: models.ToleranceBilateral, Subtype: models.SubtypeDiameter,
				FullSpecification: "⌀.500 ±.005",
			},
		},
		{
			text: "⌖ ⌀.010 A B",
			want: &models.DimensionalSpecification{
				ToleranceZone: f(0.01), Datums: []string{"A", "B"}, IsGDT: true, GDTSymbol: "position",
				Units: models.UnitsInch, ToleranceKind: models.ToleranceNone, Subtype: models.SubtypeGDT,
				FullSpecification: "|⌖|.010|A|B|",
			},
		},
		{
			text: "10.05-10.00 mm",
			want: &models.DimensionalSpecification{
				LowerLimit: f(10), UpperLimit: f(10.05),
				Units: models.UnitsMillimeter, ToleranceKind: models.ToleranceLimit, Subtype: models.SubtypeLinear,
				FullSpecification: "10.00-10.05 mm",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			out := s.Structure(context.Background(), Request{Text: tt.text})
			if out.Err != nil {
				t.Fatalf("unexpected error: %v", out.Err)
			}
			if out.Method != MethodSemantic {
				t.Errorf("Method = %s, want semantic", out.Method)
			}
			if diff := cmp.Diff(tt.want, out.Spec, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
				t.Errorf("spec mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStructureMalformedLeavesTokenUnparsed(t *testing.T) {
	client := &fakeClient{responses: map[string]string{
		"not json":      `the nominal is half an inch`,
		"bad enum":      `{"units": "furlong", "tolerance_kind": "none", "subtype": "Linear"}`,
		"broken limits": `{"upper_limit": 2.0, "units": "inch", "tolerance_kind": "limit", "subtype": "Linear"}`,
		"missing kind":  `{"nominal": 1.0, "units": "inch", "subtype": "Linear"}`,
		"odd symbol":    `{"gdt_symbol": "wobble", "units": "inch", "tolerance_kind": "none", "subtype": "GD&T"}`,
	}}
	s := New(client, Config{Timeout: time.Second})

	for text := range client.responses {
		out := s.Structure(context.Background(), Request{Text: text})
		if out.Spec != nil {
			t.Errorf("%q: Spec = %+v, want nil", text, out.Spec)
		}
		if !errors.Is(out.Err, ErrMalformedOutput) {
			t.Errorf("%q: Err = %v, want ErrMalformedOutput", text, out.Err)
		}
	}
}

func TestStructureTimeoutDegradesSingleToken(t *testing.T) {
	client := &fakeClient{delay: time.Second, responses: map[string]string{}}
	s := New(client, Config{Workers: 4, Timeout: 20 * time.Millisecond})

	out := s.Structure(context.Background(), Request{Text: "1.250"})
	if out.Spec != nil || !errors.Is(out.Err, context.DeadlineExceeded) {
		t.Errorf("Structure() = %+v, want nil spec with deadline error", out)
	}
}

func TestStructureWithoutClientUsesHeuristics(t *testing.T) {
	s := New(nil, Config{})
	out := s.Structure(context.Background(), Request{Text: "⌀.500±.005"})
	if out.Method != MethodHeuristic || out.Spec == nil || *out.Spec.Nominal != 0.5 {
		t.Errorf("Structure() = %+v", out)
	}
}

func TestHeuristicFirstSkipsClient(t *testing.T) {
	client := &fakeClient{responses: map[string]string{}}
	s := New(client, Config{Timeout: time.Second, HeuristicFirst: true})

	if out := s.Structure(context.Background(), Request{Text: "R.125"}); out.Method != MethodHeuristic {
		t.Errorf("Method = %s, want heuristic", out.Method)
	}
	if client.calls.Load() != 0 {
		t.Errorf("client called %d times", client.calls.Load())
	}
	// unrecognized text still goes to the client
	s.Structure(context.Background(), Request{Text: "SEE NOTE 4"})
	if client.calls.Load() != 1 {
		t.Errorf("client called %d times, want 1", client.calls.Load())
	}
}

func TestStructureAllBoundsConcurrency(t *testing.T) {
	texts := []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10"}
	client := &fakeClient{delay: 10 * time.Millisecond, responses: map[string]string{}}
	for _, tx := range texts {
		client.responses[tx] = `{"nominal": ` + tx + `, "units": "inch", "tolerance_kind": "none", "subtype": "Linear"}`
	}
	client.responses["5"] = `garbage`

	s := New(client, Config{Workers: 3, Timeout: time.Second})
	reqs := make([]Request, len(texts))
	for i, tx := range texts {
		reqs[i] = Request{Text: tx}
	}

	out, err := s.StructureAll(context.Background(), reqs)
	if err != nil {
		t.Fatal(err)
	}
	if client.maxSeen > 3 {
		t.Errorf("max concurrent calls = %d, want <= 3", client.maxSeen)
	}
	for i, o := range out {
		if i == 4 {
			if o.Spec != nil {
				t.Errorf("malformed token %d parsed: %+v", i, o.Spec)
			}
			continue
		}
		if o.Spec == nil || *o.Spec.Nominal != float64(i+1) {
			t.Errorf("outcome %d = %+v, want nominal %d", i, o, i+1)
		}
	}
}

func TestStructureAllSharesWorkersAcrossCalls(t *testing.T) {
	client := &fakeClient{delay: 30 * time.Millisecond, responses: map[string]string{}}
	s := New(client, Config{Workers: 2, Timeout: time.Second})

	reqs := make([]Request, 10)
	for i := range reqs {
		reqs[i] = Request{Text: "1.000"}
	}
	client.responses["1.000"] = `{"nominal": 1, "units": "inch", "tolerance_kind": "none", "subtype": "Linear"}`

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.StructureAll(context.Background(), reqs); err != nil {
				t.Errorf("StructureAll() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if client.maxSeen > 2 {
		t.Errorf("max concurrent semantic calls = %d, want <= 2", client.maxSeen)
	}
	if got := client.calls.Load(); got != 40 {
		t.Errorf("calls = %d, want 40", got)
	}
}

func TestSemanticGDTSymbolNormalized(t *testing.T) {
	client := &fakeClient{responses: map[string]string{
		"⊥ .005 A": `{"gdt_symbol": "Perpendicularity", "tolerance_zone": 0.005, "datums": ["A"],
			"units": "inch", "tolerance_kind": "none", "subtype": "GD&T", "is_gdt": true}`,
	}}
	s := New(client, Config{Timeout: time.Second})

	out := s.Structure(context.Background(), Request{Text: "⊥ .005 A"})
	if out.Err != nil || out.Spec.GDTSymbol != "perpendicularity" {
		t.Errorf("Structure() = %+v, want perpendicularity", out)
	}
}

func TestSystemPromptListsSymbols(t *testing.T) {
	prompt := systemPrompt()
	for _, name := range GDTSymbolNames() {
		if !strings.Contains(prompt, name) {
			t.Errorf("prompt does not list %q", name)
		}
	}
	if strings.Contains(prompt, "%!") {
		t.Error("prompt has a formatting error")
	}
}

func TestStructureAllHonorsCancellation(t *testing.T) {
	client := &fakeClient{delay: time.Second, responses: map[string]string{}}
	s := New(client, Config{Workers: 1, Timeout: 5 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	out, err := s.StructureAll(ctx, []Request{{Text: "1"}, {Text: "2"}, {Text: "3"}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if time.Since(start) > 900*time.Millisecond {
		t.Errorf("cancellation waited for outstanding calls")
	}
	for i, o := range out {
		if o.Spec != nil || o.Err == nil {
			t.Errorf("outcome %d = %+v, want abandoned", i, o)
		}
	}
}

type fakeCompleter struct {
	replies []string
	errs    []error
	calls   int
	last    openai.ChatCompletionRequest
}

func (f *fakeCompleter) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	i := f.calls
	f.calls++
	f.last = req
	if i < len(f.errs) && f.errs[i] != nil {
		return openai.ChatCompletionResponse{}, f.errs[i]
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: f.replies[i]}}},
	}, nil
}

func TestOpenAIClientRetriesAndCleansFences(t *testing.T) {
	fc := &fakeCompleter{
		errs:    []error{errors.New("502 bad gateway"), nil},
		replies: []string{"", "```json\n{\"nominal\": 1}\n```"},
	}
	c := NewOpenAIClientWithDeps(fc, OpenAIConfig{MaxRetries: 2})

	raw, err := c.Structure(context.Background(), "1.000", "SECTION A-A")
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `{"nominal": 1}` {
		t.Errorf("raw = %q", raw)
	}
	if fc.calls != 2 {
		t.Errorf("calls = %d, want 2", fc.calls)
	}
	if fc.last.ResponseFormat == nil || fc.last.ResponseFormat.Type != openai.ChatCompletionResponseFormatTypeJSONObject {
		t.Error("request did not ask for JSON mode")
	}
	if fc.last.Model != openai.GPT4oMini {
		t.Errorf("model = %q", fc.last.Model)
	}
}

func TestOpenAIClientGivesUp(t *testing.T) {
	boom := errors.New("rate limited")
	fc := &fakeCompleter{errs: []error{boom, boom}, replies: []string{"", ""}}
	c := NewOpenAIClientWithDeps(fc, OpenAIConfig{MaxRetries: 1})

	if _, err := c.Structure(context.Background(), "1.000", ""); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}
	if fc.calls != 2 {
		t.Errorf("calls = %d, want 2", fc.calls)
	}
}
