package utils

import (
	"fmt"
	"sort"
)

// VertexConnector manages global/local numbering and shared-vertex
// pick and place indices for a cell-partitioned mesh
type VertexConnector struct {
	// Mesh dimensions
	NumPartitions int
	K             int // Total cells
	Nv            int // Total vertices

	// Input connectivity
	EToV [][]int64 // Cell → global vertex indices
	EToP []int     // Cell → partition mapping

	// Cell mappings
	ElemsPerPartition []int           // Cells per partition
	GlobalToLocalElem []map[int64]int // [partition][globalCell] → localCell
	LocalToGlobalElem [][]int64       // [partition][localCell] → globalCell

	// Vertex mappings; local vertices are ordered by global index
	VertsPerPartition   []int
	GlobalToLocalVertex []map[int64]int // [partition][globalVertex] → localVertex
	LocalToGlobalVertex [][]int64       // [partition][localVertex] → globalVertex

	// VertexPartitions lists, per global vertex, the partitions holding it
	VertexPartitions [][]int

	// Pick/Place indices per partition pair for shared vertices
	PickIndices  [][]PickBuffer  // [sourcePartition][targetPartition]
	PlaceIndices [][]PlaceBuffer // [targetPartition][sourcePartition]
}

// PickBuffer contains local vertex indices a partition sends to another
type PickBuffer struct {
	Indices         []int // Local vertex indices
	TargetPartition int
}

// PlaceBuffer contains local vertex indices receiving values from another partition
type PlaceBuffer struct {
	Indices         []int // Local vertex indices
	SourcePartition int
}

// NewVertexConnector creates a connector from cell connectivity and a
// cell-to-partition assignment. numPartitions may exceed the largest
// partition referenced by EToP; the extra partitions are empty.
func NewVertexConnector(Nv int, EToV [][]int64, EToP []int, numPartitions int) (*VertexConnector, error) {
	K := len(EToV)
	if Nv < 0 {
		return nil, fmt.Errorf("invalid vertex count %d", Nv)
	}
	if len(EToP) != K {
		return nil, fmt.Errorf("EToP length %d does not match K=%d", len(EToP), K)
	}

	for _, p := range EToP {
		if p < 0 {
			return nil, fmt.Errorf("negative partition %d", p)
		}
		if p+1 > numPartitions {
			numPartitions = p + 1
		}
	}
	if numPartitions < 1 {
		numPartitions = 1
	}

	vc := &VertexConnector{
		NumPartitions: numPartitions,
		K:             K,
		Nv:            Nv,
		EToV:          EToV,
		EToP:          EToP,
	}

	if err := vc.buildPartitionMappings(); err != nil {
		return nil, err
	}
	vc.initializeBuffers()
	vc.BuildIndices()

	return vc, nil
}

// buildPartitionMappings creates bidirectional maps between global and
// local cell and vertex numbering
func (vc *VertexConnector) buildPartitionMappings() error {
	vc.ElemsPerPartition = make([]int, vc.NumPartitions)
	vc.GlobalToLocalElem = make([]map[int64]int, vc.NumPartitions)
	vc.LocalToGlobalElem = make([][]int64, vc.NumPartitions)
	for p := 0; p < vc.NumPartitions; p++ {
		vc.GlobalToLocalElem[p] = make(map[int64]int)
	}

	vc.VertexPartitions = make([][]int, vc.Nv)
	for globalElem, verts := range vc.EToV {
		p := vc.EToP[globalElem]
		vc.GlobalToLocalElem[p][int64(globalElem)] = len(vc.LocalToGlobalElem[p])
		vc.LocalToGlobalElem[p] = append(vc.LocalToGlobalElem[p], int64(globalElem))
		vc.ElemsPerPartition[p]++

		for _, v := range verts {
			if v < 0 || v >= int64(vc.Nv) {
				return fmt.Errorf("cell %d references vertex %d of %d", globalElem, v, vc.Nv)
			}
			// kept sorted; round-robin layouts visit partitions out of order
			parts := vc.VertexPartitions[v]
			if idx := sort.SearchInts(parts, p); idx == len(parts) || parts[idx] != p {
				parts = append(parts, 0)
				copy(parts[idx+1:], parts[idx:])
				parts[idx] = p
				vc.VertexPartitions[v] = parts
			}
		}
	}

	vc.VertsPerPartition = make([]int, vc.NumPartitions)
	vc.GlobalToLocalVertex = make([]map[int64]int, vc.NumPartitions)
	vc.LocalToGlobalVertex = make([][]int64, vc.NumPartitions)
	for p := 0; p < vc.NumPartitions; p++ {
		vc.GlobalToLocalVertex[p] = make(map[int64]int)
	}
	for v, parts := range vc.VertexPartitions {
		for _, p := range parts {
			vc.GlobalToLocalVertex[p][int64(v)] = len(vc.LocalToGlobalVertex[p])
			vc.LocalToGlobalVertex[p] = append(vc.LocalToGlobalVertex[p], int64(v))
			vc.VertsPerPartition[p]++
		}
	}
	return nil
}

// initializeBuffers creates empty pick and place buffer structures
func (vc *VertexConnector) initializeBuffers() {
	vc.PickIndices = make([][]PickBuffer, vc.NumPartitions)
	vc.PlaceIndices = make([][]PlaceBuffer, vc.NumPartitions)

	for p := 0; p < vc.NumPartitions; p++ {
		vc.PickIndices[p] = make([]PickBuffer, vc.NumPartitions)
		vc.PlaceIndices[p] = make([]PlaceBuffer, vc.NumPartitions)

		for q := 0; q < vc.NumPartitions; q++ {
			vc.PickIndices[p][q] = PickBuffer{
				Indices:         make([]int, 0),
				TargetPartition: q,
			}
			vc.PlaceIndices[p][q] = PlaceBuffer{
				Indices:         make([]int, 0),
				SourcePartition: q,
			}
		}
	}
}

// BuildIndices constructs pick and place indices for every shared vertex.
// Vertices are visited in global order so that pick[p][q] and place[q][p]
// line up entry by entry.
func (vc *VertexConnector) BuildIndices() {
	for v, parts := range vc.VertexPartitions {
		if len(parts) < 2 {
			continue
		}
		for _, p := range parts {
			for _, q := range parts {
				if p == q {
					continue
				}
				vc.PickIndices[p][q].Indices = append(vc.PickIndices[p][q].Indices,
					vc.GlobalToLocalVertex[p][int64(v)])
				vc.PlaceIndices[q][p].Indices = append(vc.PlaceIndices[q][p].Indices,
					vc.GlobalToLocalVertex[q][int64(v)])
			}
		}
	}
}

// SharedWith returns, for each local vertex of partition p that other
// partitions also hold, the sorted list of those partitions. It reads the
// pick lists, so BuildIndices must have run.
func (vc *VertexConnector) SharedWith(p int) map[int][]int {
	shared := make(map[int][]int)
	for q := 0; q < vc.NumPartitions; q++ {
		for _, local := range vc.GetPickIndices(p, q) {
			shared[local] = append(shared[local], q)
		}
	}
	return shared
}

// GetPickIndices returns pick indices for sending from source to target partition
func (vc *VertexConnector) GetPickIndices(sourcePartition, targetPartition int) []int {
	if sourcePartition < 0 || sourcePartition >= vc.NumPartitions ||
		targetPartition < 0 || targetPartition >= vc.NumPartitions {
		return nil
	}
	return vc.PickIndices[sourcePartition][targetPartition].Indices
}

// GetPlaceIndices returns place indices for target partition receiving from source
func (vc *VertexConnector) GetPlaceIndices(targetPartition, sourcePartition int) []int {
	if targetPartition < 0 || targetPartition >= vc.NumPartitions ||
		sourcePartition < 0 || sourcePartition >= vc.NumPartitions {
		return nil
	}
	return vc.PlaceIndices[targetPartition][sourcePartition].Indices
}

// Verify checks index validity and conservation properties
func (vc *VertexConnector) Verify() error {
	// Verify 1: Local validity - all pick indices are within bounds
	for p := 0; p < vc.NumPartitions; p++ {
		for q := 0; q < vc.NumPartitions; q++ {
			for _, idx := range vc.PickIndices[p][q].Indices {
				if idx < 0 || idx >= vc.VertsPerPartition[p] {
					return fmt.Errorf("invalid pick index %d for partition %d (max %d)",
						idx, p, vc.VertsPerPartition[p]-1)
				}
			}
		}
	}

	// Verify 2: Correspondence - pick and place address the same global vertices
	for p := 0; p < vc.NumPartitions; p++ {
		for q := 0; q < vc.NumPartitions; q++ {
			pick := vc.PickIndices[p][q].Indices
			place := vc.PlaceIndices[q][p].Indices
			if len(pick) != len(place) {
				return fmt.Errorf("length mismatch: pick[%d][%d]=%d, place[%d][%d]=%d",
					p, q, len(pick), q, p, len(place))
			}
			for i := range pick {
				gp := vc.LocalToGlobalVertex[p][pick[i]]
				gq := vc.LocalToGlobalVertex[q][place[i]]
				if gp != gq {
					return fmt.Errorf("pick[%d][%d][%d] is vertex %d but place[%d][%d][%d] is %d",
						p, q, i, gp, q, p, i, gq)
				}
			}
		}
	}

	// Verify 3: Conservation - every referenced vertex lives somewhere and
	// local vertex counts add up to the partition multiplicity
	total := 0
	for _, parts := range vc.VertexPartitions {
		total += len(parts)
	}
	local := 0
	for p := 0; p < vc.NumPartitions; p++ {
		local += vc.VertsPerPartition[p]
	}
	if total != local {
		return fmt.Errorf("conservation error: vertex copies %d != local vertices %d", total, local)
	}

	return nil
}
