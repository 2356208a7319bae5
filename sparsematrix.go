package bisimulation

import (
	"fmt"
	"math"
	"sort"
)

// SparseMatrix is a row-grouped compressed sparse row matrix. Every row group belongs
// to one state; deterministic models have exactly one row per group, nondeterministic
// models have one row per choice.
type SparseMatrix struct {
	// rowIndications[r] is the offset of row r in columns and values; the last
	// element is the entry count.
	rowIndications []int
	columns        []int
	values         []float64

	// rowGroupIndices[g] is the first row of group g; the last element is the row
	// count.
	rowGroupIndices []int
	columnCount     int
	trivialGrouping bool
}

func (m *SparseMatrix) RowCount() int {
	return len(m.rowIndications) - 1
}

func (m *SparseMatrix) ColumnCount() int {
	return m.columnCount
}

func (m *SparseMatrix) EntryCount() int {
	return len(m.columns)
}

func (m *SparseMatrix) RowGroupCount() int {
	return len(m.rowGroupIndices) - 1
}

// HasTrivialRowGrouping reports whether every group holds exactly one row.
func (m *SparseMatrix) HasTrivialRowGrouping() bool {
	return m.trivialGrouping
}

// RowGroup returns the rows [begin, end) of group g.
func (m *SparseMatrix) RowGroup(g int) (begin, end int) {
	return m.rowGroupIndices[g], m.rowGroupIndices[g+1]
}

func (m *SparseMatrix) RowGroupSize(g int) int {
	return m.rowGroupIndices[g+1] - m.rowGroupIndices[g]
}

// Row returns the columns and values of row r, sorted by column. The slices alias
// the matrix storage and must not be modified.
func (m *SparseMatrix) Row(r int) ([]int, []float64) {
	begin, end := m.rowIndications[r], m.rowIndications[r+1]
	return m.columns[begin:end:end], m.values[begin:end:end]
}

func (m *SparseMatrix) RowSum(r int) float64 {
	_, values := m.Row(r)
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum
}

// Value returns the entry at (row, column), or zero.
func (m *SparseMatrix) Value(row, column int) float64 {
	columns, values := m.Row(row)
	i := sort.SearchInts(columns, column)
	if i < len(columns) && columns[i] == column {
		return values[i]
	}
	return 0
}

// Transpose returns the predecessor relation at the level of row groups: row t lists
// every group s with a row reaching column t, weighted by the sum over those rows.
// The result has one row per group and trivial grouping.
func (m *SparseMatrix) Transpose() *SparseMatrix {
	n := m.RowGroupCount()
	rows := max(n, m.columnCount)

	rowIndications := make([]int, rows+1)
	for _, column := range m.columns {
		rowIndications[column+1]++
	}
	for i := 1; i <= rows; i++ {
		rowIndications[i] += rowIndications[i-1]
	}

	columns := make([]int, len(m.columns))
	values := make([]float64, len(m.values))
	next := make([]int, rows)
	copy(next, rowIndications[:rows])
	for g := 0; g < n; g++ {
		for r := m.rowGroupIndices[g]; r < m.rowGroupIndices[g+1]; r++ {
			for i := m.rowIndications[r]; i < m.rowIndications[r+1]; i++ {
				t := m.columns[i]
				columns[next[t]] = g
				values[next[t]] = m.values[i]
				next[t]++
			}
		}
	}

	// Groups were visited in ascending order, so duplicates are adjacent.
	upto := 0
	for t := 0; t < rows; t++ {
		begin, end := rowIndications[t], rowIndications[t+1]
		rowIndications[t] = upto
		for i := begin; i < end; i++ {
			if upto > rowIndications[t] && columns[upto-1] == columns[i] {
				values[upto-1] += values[i]
				continue
			}
			columns[upto] = columns[i]
			values[upto] = values[i]
			upto++
		}
	}
	rowIndications[rows] = upto

	return &SparseMatrix{
		rowIndications:  rowIndications,
		columns:         columns[:upto],
		values:          values[:upto],
		rowGroupIndices: trivialGroups(rows),
		columnCount:     n,
		trivialGrouping: true,
	}
}

func (m *SparseMatrix) String() string {
	return fmt.Sprintf("SparseMatrix{rows: %d, columns: %d, entries: %d, groups: %d}",
		m.RowCount(), m.ColumnCount(), m.EntryCount(), m.RowGroupCount())
}

func trivialGroups(rows int) []int {
	groups := make([]int, rows+1)
	for i := range groups {
		groups[i] = i
	}
	return groups
}

// SparseMatrixBuilder assembles a SparseMatrix row by row. Rows must be added in
// non-decreasing order; entries within a row may come in any order and duplicate
// columns are summed when the row is finished.
type SparseMatrixBuilder struct {
	curRow          int
	touched         bool
	rowIndications  []int
	columns         []int
	values          []float64
	customGrouping  bool
	rowGroupIndices []int
	columnCount     int
}

// NewSparseMatrixBuilder reserves room for the given number of rows and entries.
// With customGrouping, row groups are opened explicitly through NewRowGroup.
func NewSparseMatrixBuilder(rows, entries int, customGrouping bool) *SparseMatrixBuilder {
	b := &SparseMatrixBuilder{
		rowIndications: make([]int, 1, max(rows, 0)+1),
		columns:        make([]int, 0, max(entries, 0)),
		values:         make([]float64, 0, max(entries, 0)),
		customGrouping: customGrouping,
	}
	return b
}

// NewRowGroup opens a group whose first row is startingRow.
func (b *SparseMatrixBuilder) NewRowGroup(startingRow int) error {
	if !b.customGrouping {
		return fmt.Errorf("row group at row %d on a builder without custom grouping: %w", startingRow, ErrInvalidModel)
	}
	if n := len(b.rowGroupIndices); n > 0 && b.rowGroupIndices[n-1] > startingRow {
		return fmt.Errorf("row group start %d precedes previous group start %d: %w",
			startingRow, b.rowGroupIndices[n-1], ErrInvalidModel)
	}
	if startingRow < b.curRow || (b.touched && startingRow == b.curRow && b.rowIndications[b.curRow] < len(b.columns)) {
		return fmt.Errorf("row group start %d is already filled: %w", startingRow, ErrInvalidModel)
	}
	b.rowGroupIndices = append(b.rowGroupIndices, startingRow)
	return nil
}

// AddNextValue adds value at (row, column).
func (b *SparseMatrixBuilder) AddNextValue(row, column int, value float64) error {
	if row < 0 || column < 0 {
		return fmt.Errorf("negative index (%d, %d): %w", row, column, ErrInvalidModel)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("non-finite value at (%d, %d): %w", row, column, ErrInvalidModel)
	}
	if row < b.curRow {
		return fmt.Errorf("row %d added after row %d: %w", row, b.curRow, ErrInvalidModel)
	}
	if row > b.curRow {
		b.finishCurrentRow()
		for b.curRow < row {
			b.curRow++
			b.rowIndications = append(b.rowIndications, len(b.columns))
		}
	}
	b.touched = true
	b.columns = append(b.columns, column)
	b.values = append(b.values, value)
	if column >= b.columnCount {
		b.columnCount = column + 1
	}
	return nil
}

// Build finishes the matrix. The counts are lower bounds: trailing empty rows,
// columns and groups are added up to them.
func (b *SparseMatrixBuilder) Build(rowCount, columnCount, rowGroupCount int) (*SparseMatrix, error) {
	b.finishCurrentRow()

	rows := rowCount
	if b.touched && b.curRow+1 > rows {
		rows = b.curRow + 1
	}
	if len(b.rowIndications) > rows+1 {
		rows = len(b.rowIndications) - 1
	}
	for len(b.rowIndications) < rows+1 {
		b.rowIndications = append(b.rowIndications, len(b.columns))
	}

	m := &SparseMatrix{
		rowIndications: b.rowIndications,
		columns:        b.columns,
		values:         b.values,
		columnCount:    max(columnCount, b.columnCount),
	}
	if !b.customGrouping {
		m.rowGroupIndices = trivialGroups(rows)
		m.trivialGrouping = true
		return m, nil
	}

	groups := b.rowGroupIndices
	if len(groups) == 0 && rows > 0 {
		return nil, fmt.Errorf("%d rows but no row group: %w", rows, ErrInvalidModel)
	}
	if len(groups) > 0 && groups[0] != 0 {
		return nil, fmt.Errorf("first row group starts at row %d: %w", groups[0], ErrInvalidModel)
	}
	if len(groups) > 0 && groups[len(groups)-1] > rows {
		return nil, fmt.Errorf("row group start %d beyond %d rows: %w", groups[len(groups)-1], rows, ErrInvalidModel)
	}
	for len(groups) < rowGroupCount {
		groups = append(groups, rows)
	}
	groups = append(groups, rows)
	m.rowGroupIndices = groups
	m.trivialGrouping = len(groups) == rows+1
	for g := 0; m.trivialGrouping && g+1 < len(groups); g++ {
		m.trivialGrouping = groups[g+1]-groups[g] == 1
	}
	return m, nil
}

// finishCurrentRow sorts the entries of the current row by column and merges
// duplicates.
func (b *SparseMatrixBuilder) finishCurrentRow() {
	start := b.rowIndications[b.curRow]
	end := len(b.columns)
	if end-start < 2 {
		return
	}
	sort.Sort(&rowSorter{from: start, to: end, b: b})

	upto := start
	for i := start; i < end; i++ {
		if upto > start && b.columns[upto-1] == b.columns[i] {
			b.values[upto-1] += b.values[i]
			continue
		}
		b.columns[upto] = b.columns[i]
		b.values[upto] = b.values[i]
		upto++
	}
	b.columns = b.columns[:upto]
	b.values = b.values[:upto]
}

var _ sort.Interface = &rowSorter{}

// rowSorter sorts the entries [from, to) of a builder by column.
type rowSorter struct {
	from, to int
	b        *SparseMatrixBuilder
}

func (r *rowSorter) Len() int {
	return r.to - r.from
}

func (r *rowSorter) Less(i, j int) bool {
	return r.b.columns[r.from+i] < r.b.columns[r.from+j]
}

func (r *rowSorter) Swap(i, j int) {
	i, j = r.from+i, r.from+j
	r.b.columns[i], r.b.columns[j] = r.b.columns[j], r.b.columns[i]
	r.b.values[i], r.b.values[j] = r.b.values[j], r.b.values[i]
}
