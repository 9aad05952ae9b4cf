package stats

import (
	"errors"
	"strings"
	"testing"
	"time"

	boothstats "github.com/foreach/photobooth/internal/stats"
)

func TestView(t *testing.T) {
	now := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	last := now.Add(-90 * time.Second)

	tests := []struct {
		name  string
		model Model
		want  []string
	}{
		{"loading", Model{}, []string{"loading"}},
		{"error", Model{Err: errors.New("503")}, []string{"stats unavailable: 503"}},
		{"stats", Model{Stats: &boothstats.Stats{
			SessionsStarted:   4,
			SessionsCompleted: 3,
			AvgSessionSec:     12.25,
			FilterEndReasons:  map[string]int{"next": 2, "filter_timeout": 1},
			LastSessionAt:     &last,
			Since:             now.Add(-time.Hour),
		}}, []string{"sessions started", "12.2s", "1m30s ago", "filter_timeout", "next"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := tt.model.View(80, now)
			for _, w := range tt.want {
				if !strings.Contains(v, w) {
					t.Errorf("view missing %q:\n%s", w, v)
				}
			}
		})
	}
}
