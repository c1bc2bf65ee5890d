package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateShape(t *testing.T) {
	card := Generate()
	require.Len(t, card, Columns)
	for _, col := range card {
		require.Len(t, col, Rows)
	}
}

func TestGenerateColumnRanges(t *testing.T) {
	// Column values must stay inside their 15-wide range across many deals.
	for i := 0; i < 50; i++ {
		card := Generate()
		for col := 0; col < Columns; col++ {
			low, high := col*15+1, col*15+15
			for row := 0; row < Rows; row++ {
				if col == Columns/2 && row == Rows/2 {
					continue
				}
				v := card[col][row]
				assert.GreaterOrEqual(t, v, low, "column %d", col)
				assert.LessOrEqual(t, v, high, "column %d", col)
			}
		}
	}
}

func TestGenerateColumnsDistinctAndSorted(t *testing.T) {
	for i := 0; i < 50; i++ {
		card := Generate()
		for col := 0; col < Columns; col++ {
			if col == Columns/2 {
				continue // centre cell was overwritten after sorting
			}
			for row := 1; row < Rows; row++ {
				assert.Greater(t, card[col][row], card[col][row-1],
					"column %d must be strictly ascending", col)
			}
		}
	}
}

func TestGenerateFreeCentre(t *testing.T) {
	for i := 0; i < 20; i++ {
		card := Generate()
		v, ok := card.Cell(2, 2)
		require.True(t, ok)
		assert.Equal(t, Free, v)
	}
}

func TestGenerateIsFresh(t *testing.T) {
	// Two independent deals sharing all 24 numbers is practically impossible.
	a, b := Generate(), Generate()
	same := true
	for col := range a {
		for row := range a[col] {
			if a[col][row] != b[col][row] {
				same = false
			}
		}
	}
	assert.False(t, same, "two generated cards were identical")
}

func TestCardContains(t *testing.T) {
	card := Generate()
	for _, n := range card.Numbers() {
		assert.True(t, card.Contains(n))
	}
	assert.False(t, card.Contains(76))
	assert.Len(t, card.Numbers(), 24)
}

func TestCellOutOfRange(t *testing.T) {
	card := Generate()
	_, ok := card.Cell(5, 0)
	assert.False(t, ok)
	_, ok = card.Cell(0, -1)
	assert.False(t, ok)
	_, ok = Card{}.Cell(0, 0)
	assert.False(t, ok)
}
