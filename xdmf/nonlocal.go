package xdmf

import (
	"context"
	"fmt"

	"github.com/notargets/dgxdmf/comm"
	"github.com/notargets/dgxdmf/mesh"
)

// entityKey is the sorted global vertex list of an entity below cell
// dimension, padded with -1. Such entities have at most four vertices.
type entityKey [4]int64

func keyOf(m *mesh.Mesh, dim, e int) entityKey {
	k := entityKey{-1, -1, -1, -1}
	copy(k[:], m.EntityKey(dim, e))
	return k
}

// ownership records, for each local entity of one dimension, the rank
// that writes it and the other ranks confirmed to hold it
type ownership struct {
	owner   []int
	sharers [][]int
}

// resolveOwnership decides who owns each entity of dimension dim. Ranks
// that may share an entity are those holding all of its vertices; they
// swap the keys of such entities in one exchange and the lowest rank
// holding a key owns it.
func resolveOwnership(ctx context.Context, c comm.Communicator, m *mesh.Mesh, dim int) (*ownership, error) {
	n := m.NumEntities(dim)
	own := &ownership{owner: make([]int, n), sharers: make([][]int, n)}
	rank := c.Rank()
	for e := range own.owner {
		own.owner[e] = rank
	}
	if c.Size() == 1 || dim == m.TDim() {
		return own, nil
	}

	ents := m.Entities(dim)
	width := len(m.CellType.EntityVertices(dim)[0])
	candidates := make([][]int, n)
	out := make([][]int64, c.Size())
	for e, vs := range ents.Vertices {
		cand := m.Shared[vs[0]]
		for _, v := range vs[1:] {
			cand = intersectSorted(cand, m.Shared[v])
			if len(cand) == 0 {
				break
			}
		}
		if len(cand) == 0 {
			continue
		}
		candidates[e] = cand
		key := m.EntityKey(dim, e)
		for _, q := range cand {
			out[q] = append(out[q], key...)
		}
	}

	in, err := comm.Exchange(ctx, c, out)
	if err != nil {
		return nil, fmt.Errorf("exchanging dimension %d keys: %w", dim, err)
	}
	held := make([]map[entityKey]bool, c.Size())
	for q, keys := range in {
		if len(keys)%width != 0 {
			return nil, fmt.Errorf("rank %d sent %d key values, not a multiple of %d", q, len(keys), width)
		}
		held[q] = make(map[entityKey]bool, len(keys)/width)
		for i := 0; i < len(keys); i += width {
			k := entityKey{-1, -1, -1, -1}
			copy(k[:], keys[i:i+width])
			held[q][k] = true
		}
	}

	for e, cand := range candidates {
		if cand == nil {
			continue
		}
		key := keyOf(m, dim, e)
		for _, q := range cand {
			if !held[q][key] {
				continue
			}
			own.sharers[e] = append(own.sharers[e], q)
			if q < own.owner[e] {
				own.owner[e] = q
			}
		}
	}
	return own, nil
}

// intersectSorted returns the common elements of two ascending lists
func intersectSorted(a, b []int) []int {
	var out []int
	for i, j := 0, 0; i < len(a) && j < len(b); {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}

// ComputeNonlocalEntities returns, in ascending order, the local entities
// of dimension dim that another rank writes. Cells are never suppressed.
// The result depends only on the mesh and its partition. It is collective.
func ComputeNonlocalEntities(ctx context.Context, c comm.Communicator, m *mesh.Mesh, dim int) ([]int, error) {
	if dim < 0 || dim > m.TDim() {
		return nil, fmt.Errorf("%w: entity dimension %d outside [0,%d]", ErrDimensionMismatch, dim, m.TDim())
	}
	own, err := resolveOwnership(ctx, c, m, dim)
	if err != nil {
		return nil, err
	}
	suppressed := []int{}
	for e, r := range own.owner {
		if r != c.Rank() {
			suppressed = append(suppressed, e)
		}
	}
	return suppressed, nil
}

// numbering is a global numbering of the entities of one dimension
type numbering struct {
	global []int64 // local entity -> global index
	owned  []bool
	total  int64
}

func numberEntities(ctx context.Context, c comm.Communicator, m *mesh.Mesh, dim int) (*numbering, error) {
	own, err := resolveOwnership(ctx, c, m, dim)
	if err != nil {
		return nil, err
	}
	rank := c.Rank()
	num := &numbering{owned: make([]bool, len(own.owner))}
	for e, r := range own.owner {
		num.owned[e] = r == rank
	}

	switch dim {
	case 0:
		num.global, num.total = m.GlobalVertices, m.NumGlobalVertices
		return num, nil
	case m.TDim():
		num.global, num.total = m.GlobalCells, m.NumGlobalCells
		return num, nil
	}

	var nOwned int64
	for _, o := range num.owned {
		if o {
			nOwned++
		}
	}
	offset, total, err := comm.ExclusiveScan(ctx, c, nOwned)
	if err != nil {
		return nil, err
	}
	num.total = total
	num.global = make([]int64, len(own.owner))
	next := offset
	for e := range num.global {
		if num.owned[e] {
			num.global[e] = next
			next++
		} else {
			num.global[e] = -1
		}
	}
	if c.Size() == 1 {
		return num, nil
	}

	// owners tell every sharer the index of each shared entity
	width := len(m.CellType.EntityVertices(dim)[0])
	out := make([][]int64, c.Size())
	for e, sharers := range own.sharers {
		if !num.owned[e] {
			continue
		}
		key := m.EntityKey(dim, e)
		for _, q := range sharers {
			out[q] = append(out[q], key...)
			out[q] = append(out[q], num.global[e])
		}
	}
	in, err := comm.Exchange(ctx, c, out)
	if err != nil {
		return nil, fmt.Errorf("exchanging dimension %d numbering: %w", dim, err)
	}
	index := make(map[entityKey]int64)
	for _, rec := range in {
		for i := 0; i+width < len(rec); i += width + 1 {
			k := entityKey{-1, -1, -1, -1}
			copy(k[:], rec[i:i+width])
			index[k] = rec[i+width]
		}
	}
	for e := range num.global {
		if num.owned[e] {
			continue
		}
		g, ok := index[keyOf(m, dim, e)]
		if !ok {
			return nil, fmt.Errorf("dimension %d entity %v: no index from owner rank %d",
				dim, m.EntityKey(dim, e), own.owner[e])
		}
		num.global[e] = g
	}
	return num, nil
}

// NumberEntities returns a global index for every local entity of
// dimension dim and the global entity count. Vertices and cells keep the
// mesh numbering; other entities are numbered by owner rank, then by
// local order on the owner. It is collective.
func NumberEntities(ctx context.Context, c comm.Communicator, m *mesh.Mesh, dim int) ([]int64, int64, error) {
	if dim < 0 || dim > m.TDim() {
		return nil, 0, fmt.Errorf("%w: entity dimension %d outside [0,%d]", ErrDimensionMismatch, dim, m.TDim())
	}
	num, err := numberEntities(ctx, c, m, dim)
	if err != nil {
		return nil, 0, err
	}
	return num.global, num.total, nil
}

// BoundaryFacets marks the local facets on the domain boundary: those with
// a single incident cell that no other rank holds. It is collective.
func BoundaryFacets(ctx context.Context, c comm.Communicator, m *mesh.Mesh) ([]bool, error) {
	fdim := m.TDim() - 1
	if fdim < 0 {
		return nil, fmt.Errorf("%w: %s cells have no facets", ErrDimensionMismatch, m.CellType)
	}
	own, err := resolveOwnership(ctx, c, m, fdim)
	if err != nil {
		return nil, err
	}
	incident := make([]int, m.NumEntities(fdim))
	for _, fs := range m.Entities(fdim).CellEntities {
		for _, f := range fs {
			incident[f]++
		}
	}
	exterior := make([]bool, len(incident))
	for f, n := range incident {
		exterior[f] = n == 1 && len(own.sharers[f]) == 0
	}
	return exterior, nil
}

// indexedRow is a row tagged with its global index
type indexedRow[T any] struct {
	Index int64
	Row   []T
}

// blockStart returns the first global index of rank r's block when n
// indices are spread over size ranks
func blockStart(r, size int, n int64) int64 {
	return int64(r) * n / int64(size)
}

func blockOwner(g int64, size int, n int64) int {
	r := int(g * int64(size) / max(n, 1))
	for r > 0 && blockStart(r, size, n) > g {
		r--
	}
	for r+1 < size && blockStart(r+1, size, n) <= g {
		r++
	}
	return r
}

// distributeByGlobalIndex sends each row to the rank owning its global
// index block and returns this rank's block in index order. Every index in
// [0,n) must be supplied by exactly one rank.
func distributeByGlobalIndex[T any](ctx context.Context, c comm.Communicator, n int64,
	index []int64, rows [][]T) ([][]T, error) {

	size := c.Size()
	out := make([][]indexedRow[T], size)
	for i, g := range index {
		if g < 0 || g >= n {
			return nil, fmt.Errorf("global index %d outside [0,%d)", g, n)
		}
		r := blockOwner(g, size, n)
		out[r] = append(out[r], indexedRow[T]{Index: g, Row: rows[i]})
	}
	in, err := comm.Exchange(ctx, c, out)
	if err != nil {
		return nil, err
	}

	lo := blockStart(c.Rank(), size, n)
	hi := blockStart(c.Rank()+1, size, n)
	block := make([][]T, hi-lo)
	seen := make([]bool, hi-lo)
	for _, recs := range in {
		for _, rec := range recs {
			i := rec.Index - lo
			if i < 0 || i >= hi-lo || seen[i] {
				return nil, fmt.Errorf("global index %d received twice or outside block [%d,%d)", rec.Index, lo, hi)
			}
			seen[i] = true
			block[i] = rec.Row
		}
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("global index %d supplied by no rank", lo+int64(i))
		}
	}
	return block, nil
}

// ownedEntityRows returns the rows of the entities of dimension dim that
// this rank writes, in file order: cells and vertices by global index in
// rank blocks, other entities by owner rank then local order.
func ownedEntityRows[T any](ctx context.Context, c comm.Communicator, m *mesh.Mesh, dim int,
	rowOf func(e int) []T) ([][]T, error) {

	switch dim {
	case m.TDim():
		rows := make([][]T, m.NumCells())
		for e := range rows {
			rows[e] = rowOf(e)
		}
		return distributeByGlobalIndex(ctx, c, m.NumGlobalCells, m.GlobalCells, rows)
	case 0:
		num, err := numberEntities(ctx, c, m, 0)
		if err != nil {
			return nil, err
		}
		var index []int64
		var rows [][]T
		for v, o := range num.owned {
			if o {
				index = append(index, m.GlobalVertices[v])
				rows = append(rows, rowOf(v))
			}
		}
		return distributeByGlobalIndex(ctx, c, m.NumGlobalVertices, index, rows)
	}

	own, err := resolveOwnership(ctx, c, m, dim)
	if err != nil {
		return nil, err
	}
	var rows [][]T
	for e, r := range own.owner {
		if r == c.Rank() {
			rows = append(rows, rowOf(e))
		}
	}
	return rows, nil
}
