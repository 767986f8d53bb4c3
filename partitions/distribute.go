package partitions

import (
	"context"
	"fmt"

	"github.com/notargets/dgxdmf/cell"
	"github.com/notargets/dgxdmf/comm"
	"github.com/notargets/dgxdmf/mesh"
	"github.com/notargets/dgxdmf/utils"
)

// rankPayload is everything one rank needs to assemble its mesh
type rankPayload struct {
	Err string

	Name              string
	CellType          cell.Type
	Degree            int
	GDim              int
	NumGlobalVertices int64
	NumGlobalCells    int64

	GlobalVertices []int64
	Coordinates    [][]float64
	GlobalCells    []int64
	Cells          [][]int64
	Shared         map[int][]int
	Midpoints      []mesh.EdgeMidpoint

	// Pick[q] lists the local shared vertices sent to rank q, Place[q]
	// where the matching entries from rank q land
	Pick  map[int][]int
	Place map[int][]int
}

// Distribute partitions staged mesh data held by rank 0 across the ranks of
// c and returns each rank's local mesh. It is collective; only rank 0's
// data is read and other ranks may pass nil. Every rank that holds a copy
// of a vertex records the other holders in Mesh.Shared.
func Distribute(ctx context.Context, c comm.Communicator, data *mesh.LocalMeshData,
	strategy PartitionStrategy) (*mesh.Mesh, error) {

	var parts []rankPayload
	if c.Rank() == 0 {
		var err error
		if parts, err = buildPayloads(data, c.Size(), strategy); err != nil {
			// peers still wait on the scatter
			parts = make([]rankPayload, c.Size())
			for r := range parts {
				parts[r].Err = err.Error()
			}
		}
	}

	mine, err := comm.Scatter(ctx, c, 0, parts)
	if err != nil {
		return nil, fmt.Errorf("distributing mesh: %w", err)
	}
	if mine.Err != "" {
		return nil, fmt.Errorf("distributing mesh: %s", mine.Err)
	}

	m, err := mesh.Assemble(mine.Name, mine.CellType, mine.Degree, mine.GDim,
		mine.GlobalVertices, mine.Coordinates, mine.GlobalCells, mine.Cells,
		mine.NumGlobalVertices, mine.NumGlobalCells)
	if err != nil {
		return nil, fmt.Errorf("rank %d: %w", c.Rank(), err)
	}
	if mine.Shared != nil {
		m.Shared = mine.Shared
	}
	for _, mp := range mine.Midpoints {
		m.Midpoints[mp.Edge] = mp.X
	}
	if err := checkHalo(ctx, c, m, mine.Pick, mine.Place); err != nil {
		return nil, err
	}
	return m, nil
}

// checkHalo sends the global index of every picked vertex to its peer and
// checks it against the vertex the peer places it on. It is collective and
// fails on every rank when any rank finds a mismatch.
func checkHalo(ctx context.Context, c comm.Communicator, m *mesh.Mesh, pick, place map[int][]int) error {
	nv := m.NumVertices()
	var local error
	out := make([][]int64, c.Size())
	for q, idx := range pick {
		if q < 0 || q >= c.Size() {
			local = fmt.Errorf("rank %d: pick list for missing rank %d", c.Rank(), q)
			continue
		}
		out[q] = make([]int64, 0, len(idx))
		for _, v := range idx {
			if v < 0 || v >= nv {
				local = fmt.Errorf("rank %d: pick index %d of %d vertices", c.Rank(), v, nv)
				break
			}
			out[q] = append(out[q], m.GlobalVertices[v])
		}
	}
	in, err := comm.Exchange(ctx, c, out)
	if err != nil {
		return fmt.Errorf("exchanging shared vertices: %w", err)
	}

	for src, got := range in {
		if local != nil {
			break
		}
		want := place[src]
		if len(got) != len(want) {
			local = fmt.Errorf("rank %d: %d shared vertices from rank %d, %d expected",
				c.Rank(), len(got), src, len(want))
			break
		}
		for i, g := range got {
			if lv := want[i]; lv < 0 || lv >= nv || m.GlobalVertices[lv] != g {
				local = fmt.Errorf("rank %d: rank %d sends vertex %d onto local vertex %d",
					c.Rank(), src, g, lv)
				break
			}
		}
	}
	var failed int
	if local != nil {
		failed = 1
	}
	failed, err = comm.AllReduceSum(ctx, c, failed)
	if err != nil {
		return err
	}
	if local != nil {
		return local
	}
	if failed > 0 {
		return fmt.Errorf("rank %d: shared vertex check failed on %d ranks", c.Rank(), failed)
	}
	return nil
}

// Layout partitions staged data into numPartitions parts with strategy
func Layout(data *mesh.LocalMeshData, numPartitions int, strategy PartitionStrategy) (*PartitionLayout, error) {
	conn := &MeshConnectivity{NumElements: len(data.Cells)}
	if strategy == SpaceFillingCurve {
		conn.Centroids = centroids(data)
	}
	pb := &PartitionBuilder{Mesh: conn, NumPartitions: numPartitions, Strategy: strategy}
	return pb.BuildPartitions()
}

func buildPayloads(data *mesh.LocalMeshData, size int, strategy PartitionStrategy) ([]rankPayload, error) {
	if data == nil {
		return nil, fmt.Errorf("rank 0 has no mesh data")
	}
	if err := data.Validate(); err != nil {
		return nil, err
	}

	layout, err := Layout(data, size, strategy)
	if err != nil {
		return nil, err
	}
	vc, err := utils.NewVertexConnector(len(data.Coordinates), data.Cells, layout.EToP, size)
	if err != nil {
		return nil, err
	}
	if err := vc.Verify(); err != nil {
		return nil, err
	}

	midpoints := make(map[mesh.EdgeKey][]float64, len(data.Midpoints))
	for _, mp := range data.Midpoints {
		midpoints[mp.Edge] = mp.X
	}
	pairs := data.CellType.QuadraticEdges()

	parts := make([]rankPayload, size)
	for p := range parts {
		pl := rankPayload{
			Name:              data.Name,
			CellType:          data.CellType,
			Degree:            data.Degree,
			GDim:              data.GDim,
			NumGlobalVertices: data.NumGlobalVertices(),
			NumGlobalCells:    data.NumGlobalCells(),
			GlobalVertices:    vc.LocalToGlobalVertex[p],
			Coordinates:       make([][]float64, len(vc.LocalToGlobalVertex[p])),
			GlobalCells:       make([]int64, 0, vc.ElemsPerPartition[p]),
			Cells:             make([][]int64, 0, vc.ElemsPerPartition[p]),
			Shared:            vc.SharedWith(p),
			Pick:              make(map[int][]int),
			Place:             make(map[int][]int),
		}
		for q := 0; q < vc.NumPartitions; q++ {
			if idx := vc.GetPickIndices(p, q); len(idx) > 0 {
				pl.Pick[q] = idx
			}
			if idx := vc.GetPlaceIndices(p, q); len(idx) > 0 {
				pl.Place[q] = idx
			}
		}
		for i, g := range vc.LocalToGlobalVertex[p] {
			pl.Coordinates[i] = data.Coordinates[g][:data.GDim]
		}

		seen := make(map[mesh.EdgeKey]bool)
		for _, row := range vc.LocalToGlobalElem[p] {
			vs := data.Cells[row]
			pl.GlobalCells = append(pl.GlobalCells, data.CellIndex(int(row)))
			pl.Cells = append(pl.Cells, vs)
			for _, pr := range pairs {
				key := mesh.NewEdgeKey(vs[pr[0]], vs[pr[1]])
				if x, ok := midpoints[key]; ok && !seen[key] {
					seen[key] = true
					pl.Midpoints = append(pl.Midpoints, mesh.EdgeMidpoint{Edge: key, X: x})
				}
			}
		}
		parts[p] = pl
	}
	return parts, nil
}

func centroids(data *mesh.LocalMeshData) [][]float64 {
	out := make([][]float64, len(data.Cells))
	for k, vs := range data.Cells {
		c := make([]float64, data.GDim)
		for _, v := range vs {
			for d := range c {
				c[d] += data.Coordinates[v][d]
			}
		}
		for d := range c {
			c[d] /= float64(len(vs))
		}
		out[k] = c
	}
	return out
}
