package edutrack_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edutrack/edutrack"
)

func TestTotalPages(t *testing.T) {
	tests := []struct {
		name  string
		total int
		limit int
		want  int
	}{
		{"empty set has no pages", 0, 10, 0},
		{"exact multiple", 20, 10, 2},
		{"partial last page rounds up", 21, 10, 3},
		{"fewer records than the limit", 3, 10, 1},
		{"limit of one", 5, 1, 5},
		{"a nonsense limit yields no pages", 5, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, edutrack.TotalPages(tt.total, tt.limit))
		})
	}
}
