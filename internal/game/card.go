package game

import (
	"math/rand"
	"sort"
)

const (
	// Free is the sentinel value of the centre cell. It never collides with
	// a drawn number because draws start at 1.
	Free = 0

	// Columns and Rows fix the card shape.
	Columns = 5
	Rows    = 5

	// MaxNumber is the size of the callable pool.
	MaxNumber = 75

	columnSpan = 15
)

// Card is one participant's private bingo card, stored column-major:
// card[col][row]. Column c draws from [15c+1, 15c+15]; the centre cell is
// Free. A card is generated once per participant and never mutated — a
// reset replaces it wholesale.
type Card [][]int

// Generate produces a fresh uniformly-random card. Each call is independent;
// it is used both at first join and at reset.
func Generate() Card {
	card := make(Card, Columns)
	for col := 0; col < Columns; col++ {
		low := col*columnSpan + 1
		seen := make(map[int]bool, Rows)
		values := make([]int, 0, Rows)
		for len(values) < Rows {
			n := low + rand.Intn(columnSpan)
			if seen[n] {
				continue
			}
			seen[n] = true
			values = append(values, n)
		}
		sort.Ints(values)
		card[col] = values
	}
	card[Columns/2][Rows/2] = Free
	return card
}

// Cell returns the value at (col, row) and whether the card defines it.
func (c Card) Cell(col, row int) (int, bool) {
	if col < 0 || col >= len(c) || row < 0 || row >= len(c[col]) {
		return 0, false
	}
	return c[col][row], true
}

// Contains reports whether n appears on the card.
func (c Card) Contains(n int) bool {
	for _, col := range c {
		for _, v := range col {
			if v == n {
				return true
			}
		}
	}
	return false
}

// Numbers returns every non-free value on the card.
func (c Card) Numbers() []int {
	out := make([]int, 0, Columns*Rows)
	for _, col := range c {
		for _, v := range col {
			if v != Free {
				out = append(out, v)
			}
		}
	}
	return out
}

// wellFormed reports whether the card has all 25 cells defined.
func (c Card) wellFormed() bool {
	if len(c) != Columns {
		return false
	}
	for _, col := range c {
		if len(col) != Rows {
			return false
		}
	}
	return true
}
