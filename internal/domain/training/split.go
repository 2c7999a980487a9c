package training

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Split holds sorted row indices of the train and test partitions.
type Split struct {
	Train []int
	Test  []int
}

// StratifiedSplit partitions rows so that each class of y keeps its share in
// the test set. The test set has ceil(testSize*N) rows; per-class test counts
// are proportional with largest-remainder rounding (ties to the lower class
// index) and rows inside a class are drawn with a RNG seeded by seed.
func StratifiedSplit(y []int, testSize float64, seed int64) (Split, error) {
	if !(testSize > 0 && testSize < 1) {
		return Split{}, fmt.Errorf("%w: test_size %v outside (0,1)", ErrConfiguration, testSize)
	}
	n := len(y)

	byClass := make(map[int][]int)
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}
	classes := make([]int, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	if len(classes) < 2 {
		return Split{}, fmt.Errorf("%w: stratification needs at least 2 classes, got %d", ErrConfiguration, len(classes))
	}
	for _, c := range classes {
		if len(byClass[c]) < 2 {
			return Split{}, fmt.Errorf("%w: class %d has %d member, need at least 2", ErrConfiguration, c, len(byClass[c]))
		}
	}

	nTest := int(math.Ceil(testSize * float64(n)))
	nTrain := n - nTest
	if nTest < len(classes) || nTrain < len(classes) {
		return Split{}, fmt.Errorf("%w: %d train / %d test rows cannot hold %d classes", ErrConfiguration, nTrain, nTest, len(classes))
	}

	alloc := allocate(classes, byClass, nTest, n)

	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // reproducible split, not security sensitive
	var s Split
	for _, c := range classes {
		rows := append([]int(nil), byClass[c]...)
		rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
		s.Test = append(s.Test, rows[:alloc[c]]...)
		s.Train = append(s.Train, rows[alloc[c]:]...)
	}
	sort.Ints(s.Train)
	sort.Ints(s.Test)
	return s, nil
}

// allocate distributes nTest rows across classes proportionally to their size.
func allocate(classes []int, byClass map[int][]int, nTest, n int) map[int]int {
	type share struct {
		class     int
		remainder float64
	}
	alloc := make(map[int]int, len(classes))
	shares := make([]share, 0, len(classes))
	given := 0
	for _, c := range classes {
		exact := float64(len(byClass[c])) * float64(nTest) / float64(n)
		whole := int(math.Floor(exact))
		alloc[c] = whole
		given += whole
		shares = append(shares, share{class: c, remainder: exact - float64(whole)})
	}
	sort.SliceStable(shares, func(i, j int) bool { return shares[i].remainder > shares[j].remainder })
	for i := 0; given < nTest; i++ {
		c := shares[i%len(shares)].class
		if alloc[c] < len(byClass[c]) {
			alloc[c]++
			given++
		}
	}
	return alloc
}
