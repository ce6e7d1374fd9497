// Package concordance scores agreement between two categorical partitions of
// the same unit set using the Adjusted Rand Index. Sums are carried in exact
// rational arithmetic so small unit counts do not suffer floating-point
// cancellation.
package concordance

import (
	"fmt"
	"math/big"

	"spatialcore/pkg/domain"
)

// DegeneratePartitionError reports that the agreement statistic is not
// defined for the supplied partitions.
type DegeneratePartitionError struct {
	Reason string
}

func (e DegeneratePartitionError) Error() string {
	return "degenerate partition: " + e.Reason
}

// ContingencyTable cross-tabulates category co-occurrence counts between two
// partitions over the identical unit set.
type ContingencyTable struct {
	RowCategories []string
	ColCategories []string
	Counts        [][]int64
	Total         int64
}

// RowSums returns per-row marginal totals.
func (t ContingencyTable) RowSums() []int64 {
	sums := make([]int64, len(t.RowCategories))
	for i, row := range t.Counts {
		for _, n := range row {
			sums[i] += n
		}
	}
	return sums
}

// ColSums returns per-column marginal totals.
func (t ContingencyTable) ColSums() []int64 {
	sums := make([]int64, len(t.ColCategories))
	for _, row := range t.Counts {
		for j, n := range row {
			sums[j] += n
		}
	}
	return sums
}

// BuildContingency cross-tabulates the two partitions. Both must cover the
// identical barcode set; any asymmetry is an error because a misaligned
// comparison is meaningless.
func BuildContingency(a, b domain.Partition) (ContingencyTable, error) {
	if a.Len() != b.Len() {
		return ContingencyTable{}, fmt.Errorf("partitions cover %d and %d units; unit sets must be identical", a.Len(), b.Len())
	}
	rowCategories := a.Categories()
	colCategories := b.Categories()
	rowIdx := make(map[string]int, len(rowCategories))
	for i, category := range rowCategories {
		rowIdx[category] = i
	}
	colIdx := make(map[string]int, len(colCategories))
	for j, category := range colCategories {
		colIdx[category] = j
	}
	counts := make([][]int64, len(rowCategories))
	for i := range counts {
		counts[i] = make([]int64, len(colCategories))
	}
	for barcode, rowCategory := range a.Assignments {
		colCategory, ok := b.Assignments[barcode]
		if !ok {
			return ContingencyTable{}, fmt.Errorf("unit %s present in partition %q but not in %q", barcode, a.Name, b.Name)
		}
		counts[rowIdx[rowCategory]][colIdx[colCategory]]++
	}
	return ContingencyTable{
		RowCategories: rowCategories,
		ColCategories: colCategories,
		Counts:        counts,
		Total:         int64(a.Len()),
	}, nil
}

// AdjustedRandIndex computes the chance-corrected agreement between two
// partitions of the identical unit set. The result lies in roughly [-1, 1]:
// 1 for identical partitions up to relabeling, about 0 for independent ones.
// When the index denominator vanishes both partitions are trivial (a single
// spanning category, or all singletons); identical groupings score 1.0 and
// anything else is a DegeneratePartitionError.
func AdjustedRandIndex(a, b domain.Partition) (float64, error) {
	if a.Len() < 2 {
		return 0, DegeneratePartitionError{Reason: fmt.Sprintf("need at least 2 units, have %d", a.Len())}
	}
	table, err := BuildContingency(a, b)
	if err != nil {
		return 0, err
	}

	sumCells := big.NewInt(0)
	for _, row := range table.Counts {
		for _, n := range row {
			sumCells.Add(sumCells, choose2(n))
		}
	}
	sumRows := big.NewInt(0)
	for _, n := range table.RowSums() {
		sumRows.Add(sumRows, choose2(n))
	}
	sumCols := big.NewInt(0)
	for _, n := range table.ColSums() {
		sumCols.Add(sumCols, choose2(n))
	}
	pairs := choose2(table.Total)

	// expected = sumRows*sumCols/pairs; max = (sumRows+sumCols)/2
	expected := new(big.Rat).SetFrac(new(big.Int).Mul(sumRows, sumCols), pairs)
	maxIndex := new(big.Rat).SetFrac(new(big.Int).Add(sumRows, sumCols), big.NewInt(2))

	denominator := new(big.Rat).Sub(maxIndex, expected)
	if denominator.Sign() == 0 {
		if sameGrouping(table) {
			return 1.0, nil
		}
		return 0, DegeneratePartitionError{Reason: "index denominator is zero and partitions differ"}
	}
	numerator := new(big.Rat).Sub(new(big.Rat).SetInt(sumCells), expected)
	value, _ := new(big.Rat).Quo(numerator, denominator).Float64()
	return value, nil
}

// choose2 returns C(n,2) = n(n-1)/2.
func choose2(n int64) *big.Int {
	if n < 2 {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(big.NewInt(n), big.NewInt(n-1))
	return product.Div(product, big.NewInt(2))
}

// sameGrouping reports whether the contingency table describes identical
// groupings up to relabeling: every row maps onto exactly one column and
// vice versa.
func sameGrouping(table ContingencyTable) bool {
	for _, row := range table.Counts {
		nonZero := 0
		for _, n := range row {
			if n != 0 {
				nonZero++
			}
		}
		if nonZero != 1 {
			return false
		}
	}
	for j := range table.ColCategories {
		nonZero := 0
		for _, row := range table.Counts {
			if row[j] != 0 {
				nonZero++
			}
		}
		if nonZero != 1 {
			return false
		}
	}
	return true
}
