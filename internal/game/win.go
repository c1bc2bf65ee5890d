package game

// CheckWin reports whether the card holds at least one complete line given
// the called-number set. A line is complete when every cell in it is Free or
// has been called. Rows are checked first, then columns, then both
// diagonals; the first complete line wins. Cards missing cells never win.
func CheckWin(card Card, called map[int]bool) bool {
	if !card.wellFormed() {
		return false
	}

	covered := func(v int) bool {
		return v == Free || called[v]
	}

	// Rows
	for row := 0; row < Rows; row++ {
		complete := true
		for col := 0; col < Columns; col++ {
			if !covered(card[col][row]) {
				complete = false
				break
			}
		}
		if complete {
			return true
		}
	}

	// Columns
	for col := 0; col < Columns; col++ {
		complete := true
		for row := 0; row < Rows; row++ {
			if !covered(card[col][row]) {
				complete = false
				break
			}
		}
		if complete {
			return true
		}
	}

	// Diagonals
	main, anti := true, true
	for i := 0; i < Columns; i++ {
		if !covered(card[i][i]) {
			main = false
		}
		if !covered(card[i][Rows-1-i]) {
			anti = false
		}
	}
	return main || anti
}
