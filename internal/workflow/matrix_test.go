package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatrixExpand(t *testing.T) {
	t.Run("success - cross product minus exclusions", func(t *testing.T) {
		// arrange
		m := &Matrix{
			OS:      []string{"ubuntu-latest", "macos-latest", "windows-latest"},
			Version: []string{"3.6", "3.7"},
			Exclude: []Cell{{OS: "windows-latest", Version: "3.6"}},
		}

		// act
		cells := m.Expand()

		// assert
		require.Len(t, cells, 5)
		assert.NotContains(t, cells, Cell{OS: "windows-latest", Version: "3.6"})
		assert.Contains(t, cells, Cell{OS: "windows-latest", Version: "3.7"})
	})
	t.Run("success - expansion is deterministic", func(t *testing.T) {
		// arrange
		m := &Matrix{
			OS:      []string{"ubuntu-latest", "macos-latest"},
			Version: []string{"3.6", "3.7"},
		}

		// act
		first := m.Expand()
		second := m.Expand()

		// assert
		assert.Equal(t, first, second)
		assert.Equal(t, []Cell{
			{OS: "ubuntu-latest", Version: "3.6"},
			{OS: "ubuntu-latest", Version: "3.7"},
			{OS: "macos-latest", Version: "3.6"},
			{OS: "macos-latest", Version: "3.7"},
		}, first)
	})
	t.Run("success - nil matrix expands to default cell", func(t *testing.T) {
		// arrange
		var m *Matrix

		// act
		cells := m.Expand()

		// assert
		require.Len(t, cells, 1)
		assert.True(t, cells[0].IsZero())
		assert.Equal(t, "default", cells[0].Label())
	})
	t.Run("success - single dimension matrix", func(t *testing.T) {
		// arrange
		m := &Matrix{OS: []string{"ubuntu-latest", "macos-latest"}}

		// act
		cells := m.Expand()

		// assert
		require.Len(t, cells, 2)
		assert.Equal(t, "ubuntu-latest", cells[0].Label())
	})
}
