package cmd

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseAssignments(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    map[int]int
		wantErr bool
	}{
		{name: "none", pairs: nil, want: nil},
		{name: "pairs", pairs: []string{"1=5", " 3 = 12"}, want: map[int]int{1: 5, 3: 12}},
		{name: "missing separator", pairs: []string{"15"}, wantErr: true},
		{name: "zero record", pairs: []string{"0=4"}, wantErr: true},
		{name: "bad feature", pairs: []string{"2=x"}, wantErr: true},
		{name: "record twice", pairs: []string{"2=4", "2=5"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAssignments(tt.pairs)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseAssignments() error = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("parseAssignments() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
