package inspection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"balloon/internal/harvest"
	"balloon/internal/matching"
	"balloon/internal/registry"
	"balloon/pkg/models"
	"balloon/pkg/services"
)

type pageSource struct {
	pages [][]harvest.Token
}

func (s *pageSource) PageCount() (int, error) { return len(s.pages), nil }

func (s *pageSource) Harvest(index int) (*harvest.Page, error) {
	return &harvest.Page{Index: index, Width: 792, Height: 612, Tokens: s.pages[index]}, nil
}

func (s *pageSource) Raster(int) ([]byte, error) { return nil, errors.New("no raster") }

func callouts(texts ...string) []harvest.Token {
	tokens := make([]harvest.Token, len(texts))
	for i, text := range texts {
		y := float64(500 - i*30)
		tokens[i] = harvest.Token{
			Text:       text,
			X:          100,
			Y:          y,
			Width:      40,
			Height:     10,
			Region:     models.BoundingRegion{XMin: 100, YMin: 1000 - y, XMax: 140, YMax: 1010 - y},
			Confidence: 1,
			Source:     models.SourceNative,
		}
	}
	return tokens
}

type fakeSheets struct {
	rows      [][]string
	published []models.FeatureView
	sheet     string
}

func (f *fakeSheets) ReadReportRows(ctx context.Context, rangeSpec string) ([][]string, error) {
	return f.rows, nil
}

func (f *fakeSheets) WriteFeatures(ctx context.Context, views []models.FeatureView, sheetName string) error {
	f.published = views
	f.sheet = sheetName
	return nil
}

func bilateral(nominal, tol float64) *models.DimensionalSpecification {
	return &models.DimensionalSpecification{
		Nominal:        models.Float(nominal),
		PlusTolerance:  models.Float(tol),
		MinusTolerance: models.Float(tol),
		Units:          models.UnitsInch,
		ToleranceKind:  models.ToleranceBilateral,
		Subtype:        models.SubtypeLinear,
	}
}

// seeded returns a session holding features 1..n; feature id gets specs[id].
func seeded(t *testing.T, n int, specs map[int]*models.DimensionalSpecification, deps Deps) *Service {
	t.Helper()
	sess := registry.Session{Drawing: "part.pdf", NextID: n + 1}
	for id := 1; id <= n; id++ {
		sess.Features = append(sess.Features, models.Feature{
			ID: id, Page: 1, RawValue: "callout", Confidence: 1, Source: models.SourceNative, Spec: specs[id],
		})
	}
	svc, err := Resume(sess, deps)
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	return svc
}

func TestService_Extract(t *testing.T) {
	svc := New(Deps{})
	src := &pageSource{pages: [][]harvest.Token{
		callouts("1.000", "2.000", "3.000", "4.000", "5.000", "6.000"),
		callouts("7.000", "8.000", "9.000", "10.000", "11.000", "12.000"),
	}}

	result, err := svc.Extract(context.Background(), src, "part.pdf")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if result.Features != 12 || len(result.Pages) != 2 {
		t.Fatalf("result = %+v, want 12 features over 2 pages", result)
	}

	views := svc.Features()
	for i, v := range views {
		if v.ID != i+1 || v.Status != models.StatusUnknown {
			t.Errorf("view %d = id %d status %s", i, v.ID, v.Status)
		}
	}
	if views[6].Page != 2 {
		t.Errorf("feature 7 page = %d, want 2", views[6].Page)
	}
	if got := svc.Session().Drawing; got != "part.pdf" {
		t.Errorf("session drawing = %q", got)
	}
}

func TestService_ImportReport(t *testing.T) {
	svc := seeded(t, 6, map[int]*models.DimensionalSpecification{5: bilateral(0.5, 0.005)}, Deps{})
	report := "Feature=5,Nominal=0.500,Actual=0.505,Deviation=0.005,Status=FAIL\n"

	result, err := svc.ImportReport(context.Background(), strings.NewReader(report), "report.csv", services.ImportRequest{ImportID: "imp-1"})
	if err != nil {
		t.Fatalf("ImportReport() error = %v", err)
	}
	if result.State != string(matching.StateCommitted) || result.Format != models.FormatDelimited {
		t.Errorf("state %s format %s", result.State, result.Format)
	}
	if diff := cmp.Diff([]int{5}, result.Updated); diff != "" {
		t.Errorf("updated mismatch (-want +got):\n%s", diff)
	}
	if result.Fail != 1 || result.Pass != 0 {
		t.Errorf("pass/fail = %d/%d, want 0/1", result.Pass, result.Fail)
	}

	view := svc.Features()[4]
	if view.Status != models.StatusFail || view.Actual == nil || *view.Actual != 0.505 {
		t.Errorf("feature 5 view = %+v", view)
	}
}

func TestService_ImportPendingThenDecide(t *testing.T) {
	specs := map[int]*models.DimensionalSpecification{1: bilateral(0.5, 0.005), 2: bilateral(1.25, 0.01)}
	report := "Feature=9,Nominal=0.501,Actual=0.502,Plus Tol=0.001,Minus Tol=0.001\n" +
		"Feature=8,Nominal=0.750,Actual=0.751,Plus Tol=0.003,Minus Tol=0.003\n"

	svc := seeded(t, 2, specs, Deps{})
	result, err := svc.ImportReport(context.Background(), strings.NewReader(report), "report.csv", services.ImportRequest{})
	if err != nil {
		t.Fatalf("ImportReport() with pending records error = %v", err)
	}
	if diff := cmp.Diff([]int{2}, result.Pending); diff != "" {
		t.Errorf("pending mismatch (-want +got):\n%s", diff)
	}
	if result.State != string(matching.StateScored) {
		t.Errorf("state = %s, want SCORED", result.State)
	}
	if f, _ := svc.Registry().Get(1); f.Actual != nil {
		t.Errorf("unresolved import wrote feature 1")
	}

	result, err = svc.ImportReport(context.Background(), strings.NewReader(report), "report.csv", services.ImportRequest{
		Assign: map[int]int{2: 2},
	})
	if err != nil {
		t.Fatalf("ImportReport() with assignment error = %v", err)
	}
	if diff := cmp.Diff([]int{1, 2}, result.Updated); diff != "" {
		t.Errorf("updated mismatch (-want +got):\n%s", diff)
	}
	f, _ := svc.Registry().Get(2)
	if f.Actual == nil || *f.Actual != 0.751 || f.Status != models.StatusFail {
		t.Errorf("feature 2 = actual %v status %s, want 0.751 FAIL", f.Actual, f.Status)
	}
}

func TestService_ImportSkipRemainingDryRun(t *testing.T) {
	svc := seeded(t, 1, map[int]*models.DimensionalSpecification{1: bilateral(0.5, 0.005)}, Deps{})
	report := "Feature=9,Nominal=0.900,Actual=0.902\n"

	result, err := svc.ImportReport(context.Background(), strings.NewReader(report), "report.csv", services.ImportRequest{
		SkipRemaining: true,
		DryRun:        true,
	})
	if err != nil {
		t.Fatalf("ImportReport() error = %v", err)
	}
	if result.State != string(matching.StateResolved) || len(result.Pending) != 0 {
		t.Errorf("state %s pending %v, want RESOLVED with none pending", result.State, result.Pending)
	}
	if len(result.Updated) != 0 {
		t.Errorf("dry run updated %v", result.Updated)
	}
}

func TestService_ImportEmptyReport(t *testing.T) {
	svc := seeded(t, 1, nil, Deps{})

	result, err := svc.ImportReport(context.Background(), strings.NewReader("Inspection report\nOperator: J\n"), "notes.txt", services.ImportRequest{})
	if err != nil {
		t.Fatalf("ImportReport() error = %v", err)
	}
	if result.State != string(matching.StateParsed) || result.Diagnostic == "" {
		t.Errorf("state %s diagnostic %q, want PARSED with a diagnostic", result.State, result.Diagnostic)
	}
}

func TestService_ImportSheetAndPublish(t *testing.T) {
	sheets := &fakeSheets{rows: [][]string{
		{"Feature", "Nominal", "Actual", "Plus Tol", "Minus Tol"},
		{"5", "0.500", "0.503", "0.005", "0.005"},
	}}
	svc := seeded(t, 6, map[int]*models.DimensionalSpecification{5: bilateral(0.5, 0.005)}, Deps{Sheets: sheets})

	result, err := svc.ImportSheet(context.Background(), "CMM!A1:E", services.ImportRequest{})
	if err != nil {
		t.Fatalf("ImportSheet() error = %v", err)
	}
	if result.Format != models.FormatSheet || result.Pass != 1 {
		t.Errorf("format %s pass %d, want sheets with 1 pass", result.Format, result.Pass)
	}

	if err := svc.Publish(context.Background(), "Inspection"); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if sheets.sheet != "Inspection" || len(sheets.published) != 6 {
		t.Fatalf("published %d features to %q", len(sheets.published), sheets.sheet)
	}
	if got := sheets.published[4].Status; got != models.StatusPass {
		t.Errorf("published status = %s, want PASS", got)
	}
}

func TestService_WithoutSheets(t *testing.T) {
	svc := New(Deps{})
	if _, err := svc.ImportSheet(context.Background(), "A1:B", services.ImportRequest{}); err == nil {
		t.Error("ImportSheet() without client succeeded")
	}
	if err := svc.Publish(context.Background(), "x"); err == nil {
		t.Error("Publish() without client succeeded")
	}
}

func ExampleService_ImportReport() {
	sess := registry.Session{NextID: 3, Features: []models.Feature{
		{ID: 1, Page: 1, RawValue: ".500±.005", Spec: bilateral(0.5, 0.005)},
		{ID: 2, Page: 1, RawValue: "1.250±.010", Spec: bilateral(1.25, 0.01)},
	}}
	svc, _ := Resume(sess, Deps{})

	report := "Feature,Nominal,Actual\n2,1.250,1.262\n"
	result, _ := svc.ImportReport(context.Background(), strings.NewReader(report), "cmm.csv", services.ImportRequest{ImportID: "run-7"})

	fmt.Println(result.ImportID, result.State, result.Updated)
	for _, v := range svc.Features() {
		fmt.Println(v.ID, v.Status)
	}
	// Output:
	// run-7 COMMITTED [2]
	// 1 UNKNOWN
	// 2 FAIL
}
