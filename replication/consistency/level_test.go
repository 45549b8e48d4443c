package consistency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelN(t *testing.T) {
	tests := []struct {
		level Level
		rf    int
		want  int
	}{
		{One, 3, 1},
		{Quorum, 1, 1},
		{Quorum, 2, 2},
		{Quorum, 3, 2},
		{Quorum, 4, 3},
		{Quorum, 5, 3},
		{All, 3, 3},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.level.N(tt.rf), "%s of %d", tt.level, tt.rf)
	}
}

func TestParse(t *testing.T) {
	for name, want := range map[string]Level{
		"one":    One,
		"quorum": Quorum,
		"QUORUM": Quorum,
		"all":    All,
		"":       Quorum,
	} {
		got, err := Parse(name)
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}

	_, err := Parse("eventual")
	assert.Error(t, err)
}
