package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSecurityScoreClean(t *testing.T) {
	assert.Equal(t, 100.0, SecurityScore(0, 0, 0, 0, 0, 0))
}

func TestSecurityScoreWeights(t *testing.T) {
	tests := []struct {
		name string
		auth, rate, csrf, val,
		emergency, critical int
		want float64
	}{
		{"auth failures weigh x2", 3, 0, 0, 0, 0, 0, 94},
		{"rate violations weigh x1", 0, 5, 0, 0, 0, 0, 95},
		{"csrf failures weigh x3", 0, 0, 2, 0, 0, 0, 94},
		{"validation errors weigh x0.5", 0, 0, 0, 4, 0, 0, 98},
		{"critical incident costs 10", 0, 0, 0, 0, 0, 1, 90},
		{"emergency incident costs 15", 0, 0, 0, 0, 1, 0, 85},
		{"combined", 2, 3, 1, 2, 0, 1, 100 - 4 - 3 - 3 - 1 - 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SecurityScore(tt.auth, tt.rate, tt.csrf, tt.val, tt.emergency, tt.critical)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSecurityScoreCategoryCaps(t *testing.T) {
	// Одна шумная категория не может отнять больше своего кепа
	assert.Equal(t, 80.0, SecurityScore(1000, 0, 0, 0, 0, 0))
	assert.Equal(t, 85.0, SecurityScore(0, 1000, 0, 0, 0, 0))
	assert.Equal(t, 75.0, SecurityScore(0, 0, 1000, 0, 0, 0))
	assert.Equal(t, 90.0, SecurityScore(0, 0, 0, 1000, 0, 0))
}

func TestSecurityScoreFloorsAtZero(t *testing.T) {
	// Штраф за тяжелые инциденты кепа не имеет, но балл не уходит ниже нуля
	assert.Equal(t, 0.0, SecurityScore(1000, 1000, 1000, 1000, 10, 10))
}
