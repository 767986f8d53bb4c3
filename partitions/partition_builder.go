package partitions

import (
	"fmt"
	"math"
	"sort"

	"github.com/notargets/dgxdmf/cell"
)

// PartitionBuilder constructs partitions from mesh connectivity
type PartitionBuilder struct {
	// Mesh connectivity
	Mesh *MeshConnectivity

	// Partitioning parameters
	NumPartitions       int // Fixed partition count; 0 derives it from TargetPartitionSize
	TargetPartitionSize int // Desired cells per partition
	Strategy            PartitionStrategy
}

// MeshConnectivity provides the mesh data needed for partitioning
type MeshConnectivity struct {
	NumElements  int
	ElementTypes []cell.Type

	// Centroids are only needed by SpaceFillingCurve
	Centroids [][]float64
}

// PartitionStrategy defines how cells are grouped
type PartitionStrategy int

const (
	// Simple strategies
	BlockPartition PartitionStrategy = iota // Consecutive cells
	RoundRobin                              // Distribute cyclically

	// Geometry-based strategies
	GraphPartition    // Falls back to BlockPartition
	SpaceFillingCurve // Morton curve ordering of cell centroids
)

func (s PartitionStrategy) String() string {
	switch s {
	case BlockPartition:
		return "block"
	case RoundRobin:
		return "roundrobin"
	case GraphPartition:
		return "graph"
	case SpaceFillingCurve:
		return "sfc"
	}
	return fmt.Sprintf("PartitionStrategy(%d)", int(s))
}

// ParseStrategy resolves a strategy from its String form
func ParseStrategy(name string) (PartitionStrategy, error) {
	for _, s := range []PartitionStrategy{BlockPartition, RoundRobin, GraphPartition, SpaceFillingCurve} {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown partition strategy %q", name)
}

// BuildPartitions creates a partition layout from mesh connectivity
func (pb *PartitionBuilder) BuildPartitions() (*PartitionLayout, error) {
	// Determine number of partitions needed
	numPartitions := pb.calculateNumPartitions()

	// Partition the cells
	eToP, err := pb.partitionElements(numPartitions)
	if err != nil {
		return nil, err
	}

	// Create partition structures
	partitions := pb.createPartitions(eToP, numPartitions)

	// Calculate KpartMax
	kpartMax := 0
	for _, p := range partitions {
		if p.NumElements > kpartMax {
			kpartMax = p.NumElements
		}
	}
	for i := range partitions {
		partitions[i].MaxElements = kpartMax
	}

	layout := &PartitionLayout{
		Partitions:    partitions,
		KpartMax:      kpartMax,
		TotalElements: pb.Mesh.NumElements,
		NumPartitions: numPartitions,
		EToP:          eToP,
	}

	if err := layout.ValidateLayout(); err != nil {
		return nil, fmt.Errorf("invalid partition layout: %w", err)
	}

	return layout, nil
}

// calculateNumPartitions determines the partition count
func (pb *PartitionBuilder) calculateNumPartitions() int {
	if pb.NumPartitions > 0 {
		return pb.NumPartitions
	}
	numPartitions := 1
	if pb.TargetPartitionSize > 0 {
		numPartitions = int(math.Ceil(float64(pb.Mesh.NumElements) / float64(pb.TargetPartitionSize)))
	}

	// Ensure at least one partition
	if numPartitions < 1 {
		numPartitions = 1
	}

	return numPartitions
}

// partitionElements assigns cells to partitions
func (pb *PartitionBuilder) partitionElements(numPartitions int) ([]int, error) {
	n := pb.Mesh.NumElements
	eToP := make([]int, n)

	switch pb.Strategy {
	case BlockPartition, GraphPartition:
		blockAssign(eToP, identityOrder(n), numPartitions)

	case RoundRobin:
		for i := 0; i < n; i++ {
			eToP[i] = i % numPartitions
		}

	case SpaceFillingCurve:
		if len(pb.Mesh.Centroids) != n {
			return nil, fmt.Errorf("space filling curve needs %d centroids, got %d",
				n, len(pb.Mesh.Centroids))
		}
		blockAssign(eToP, mortonOrder(pb.Mesh.Centroids), numPartitions)

	default:
		return nil, fmt.Errorf("unsupported strategy %s", pb.Strategy)
	}

	return eToP, nil
}

// blockAssign gives consecutive runs of order to each partition, sizes
// differing by at most one
func blockAssign(eToP, order []int, numPartitions int) {
	n := len(order)
	for i, k := range order {
		eToP[k] = i * numPartitions / max(n, 1)
	}
}

func identityOrder(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}

// mortonOrder sorts cells by the Z-order code of their centroid inside the
// centroid bounding box
func mortonOrder(centroids [][]float64) []int {
	const bits = 21
	dim := 0
	for _, c := range centroids {
		dim = max(dim, len(c))
	}
	lo := make([]float64, dim)
	hi := make([]float64, dim)
	for d := range lo {
		lo[d], hi[d] = math.Inf(1), math.Inf(-1)
	}
	for _, c := range centroids {
		for d, x := range c {
			lo[d] = math.Min(lo[d], x)
			hi[d] = math.Max(hi[d], x)
		}
	}

	codes := make([]uint64, len(centroids))
	for k, c := range centroids {
		var code uint64
		for b := bits - 1; b >= 0; b-- {
			for d := 0; d < dim; d++ {
				var q uint64
				if d < len(c) && hi[d] > lo[d] {
					q = uint64((c[d] - lo[d]) / (hi[d] - lo[d]) * float64(uint64(1)<<bits-1))
				}
				code = code<<1 | (q>>uint(b))&1
			}
		}
		codes[k] = code
	}

	order := identityOrder(len(centroids))
	sort.SliceStable(order, func(i, j int) bool { return codes[order[i]] < codes[order[j]] })
	return order
}

// createPartitions builds partition structures from cell assignments
func (pb *PartitionBuilder) createPartitions(eToP []int, numPartitions int) []Partition {
	partitions := make([]Partition, numPartitions)

	for i := range partitions {
		partitions[i] = Partition{
			ID:           i,
			Elements:     make([]int, 0),
			ElementTypes: make([]cell.Type, 0),
		}
	}

	// Cells stay in ascending global order inside each partition
	for elem, part := range eToP {
		partitions[part].Elements = append(partitions[part].Elements, elem)
		if pb.Mesh.ElementTypes != nil {
			partitions[part].ElementTypes = append(partitions[part].ElementTypes,
				pb.Mesh.ElementTypes[elem])
		}
		partitions[part].NumElements++
	}

	return partitions
}
