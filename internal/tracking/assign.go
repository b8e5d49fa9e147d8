package tracking

import (
	hungarian "github.com/arthurkushman/go-hungarian"
)

// assignGreedy walks tracks in order and gives each the best unused detection
// scoring strictly above threshold. Returns {track, detection} pairs.
func assignGreedy(scores [][]float32, threshold float32) [][2]int {
	var pairs [][2]int
	if len(scores) == 0 {
		return pairs
	}
	used := make([]bool, len(scores[0]))
	for i, row := range scores {
		best := -1
		bestScore := threshold
		for j, s := range row {
			if used[j] {
				continue
			}
			if s > bestScore {
				best, bestScore = j, s
			}
		}
		if best >= 0 {
			used[best] = true
			pairs = append(pairs, [2]int{i, best})
		}
	}
	return pairs
}

// assignHungarian maximises the total score over a zero-padded square matrix,
// then drops pairs that do not clear threshold.
func assignHungarian(scores [][]float32, threshold float32) [][2]int {
	var pairs [][2]int
	if len(scores) == 0 || len(scores[0]) == 0 {
		return pairs
	}
	nTracks, nDets := len(scores), len(scores[0])
	size := max(nTracks, nDets)

	padded := make([][]float64, size)
	for i := range padded {
		padded[i] = make([]float64, size)
		if i >= nTracks {
			continue
		}
		for j := 0; j < nDets; j++ {
			padded[i][j] = max(0, float64(scores[i][j]))
		}
	}

	for ti, row := range hungarian.SolveMax(padded) {
		for di := range row {
			if ti < nTracks && di < nDets && scores[ti][di] > threshold {
				pairs = append(pairs, [2]int{ti, di})
			}
		}
	}
	return pairs
}
