package rank

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompute(t *testing.T) {
	tests := []struct {
		total     int
		name      string
		next      int
		progress  float64
		remaining int
	}{
		{total: 0, name: "Unrankt", next: 100, progress: 0, remaining: 100},
		{total: -20, name: "Unrankt", next: 100, progress: 0, remaining: 120},
		{total: 50, name: "Unrankt", next: 100, progress: 50, remaining: 50},
		{total: 100, name: "Front Flipper", next: 200, progress: 0, remaining: 100},
		{total: 875, name: "Käse Füß Sigma", next: 900, progress: 75, remaining: 25},
		{total: 950, name: "Käse Füß Sigma", next: 900, progress: 100, remaining: 0},
		{total: 1000, name: "Ultimate Durchhähmer", next: 1200, progress: 0, remaining: 200},
		{total: 1475, name: "Psychiatrie C2", next: 1500, progress: 50, remaining: 25},
		{total: 1600, name: "Halal-Schlachter", next: 0, progress: 100, remaining: 0},
		{total: 99999, name: "Halal-Schlachter", next: 0, progress: 100, remaining: 0},
	}

	for _, tt := range tests {
		info := Compute(tt.total)
		assert.Equal(t, tt.name, info.Name, "total %d", tt.total)
		assert.Equal(t, tt.next, info.Next, "total %d", tt.total)
		assert.InDelta(t, tt.progress, info.Progress, 0.001, "total %d", tt.total)
		assert.Equal(t, tt.remaining, info.Remaining, "total %d", tt.total)
		assert.Equal(t, tt.next == 0, info.Max(), "total %d", tt.total)
	}
}

func TestTiersAscending(t *testing.T) {
	for i := 1; i < len(Tiers); i++ {
		assert.Greater(t, Tiers[i].Min, Tiers[i-1].Min, Tiers[i].Name)
	}
	assert.Zero(t, Tiers[len(Tiers)-1].Next)
}

func TestEmblem(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("./fotos/kaese-fuss-sigma.png", Emblem("Käse Füß Sigma"))
	assert.Equal("./fotos/fnaf-tuf.png", Emblem("Fnaf/Tuf"))
	assert.Equal("./fotos/unrankt.png", Emblem("Grand Master"))
	assert.Equal(Emblem("Psychiatrie C3"), Compute(1500).Emblem)
}
