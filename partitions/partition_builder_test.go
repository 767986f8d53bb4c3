package partitions

import (
	"testing"

	"github.com/notargets/dgxdmf/mesh"
)

// TestBuildPartitions_Strategies tests that every strategy yields a valid balanced layout
func TestBuildPartitions_Strategies(t *testing.T) {
	data := mesh.UnitCubeMesh(2, 2, 2) // 48 tetrahedra

	for _, strategy := range []PartitionStrategy{BlockPartition, RoundRobin, GraphPartition, SpaceFillingCurve} {
		t.Run(strategy.String(), func(t *testing.T) {
			layout, err := Layout(data, 4, strategy)
			if err != nil {
				t.Fatalf("Failed to build layout: %v", err)
			}

			// Test 1: Fundamental sizing
			if layout.NumPartitions != 4 {
				t.Errorf("Expected 4 partitions, got %d", layout.NumPartitions)
			}
			if layout.TotalElements != 48 {
				t.Errorf("Expected 48 cells, got %d", layout.TotalElements)
			}

			// Test 2: Balance
			stats := layout.PartitionStatistics()
			if stats.MinElements != 12 || stats.MaxElements != 12 {
				t.Errorf("Expected 12 cells per partition, got min %d max %d",
					stats.MinElements, stats.MaxElements)
			}
			if stats.Imbalance != 1.0 {
				t.Errorf("Expected imbalance 1.0, got %f", stats.Imbalance)
			}

			// Test 3: Cells inside a partition stay in ascending order
			for _, p := range layout.Partitions {
				for i := 1; i < len(p.Elements); i++ {
					if p.Elements[i-1] >= p.Elements[i] {
						t.Errorf("Partition %d cells not ascending: %v", p.ID, p.Elements)
						break
					}
				}
			}
		})
	}
}

// TestBuildPartitions_UnevenBlocks tests block sizes differing by at most one
func TestBuildPartitions_UnevenBlocks(t *testing.T) {
	pb := &PartitionBuilder{
		Mesh:          &MeshConnectivity{NumElements: 10},
		NumPartitions: 4,
		Strategy:      BlockPartition,
	}
	layout, err := pb.BuildPartitions()
	if err != nil {
		t.Fatalf("Failed to build layout: %v", err)
	}

	expected := []int{0, 0, 0, 1, 1, 2, 2, 2, 3, 3}
	for k, p := range expected {
		if layout.GetPartition(k) != p {
			t.Errorf("Cell %d: expected partition %d, got %d", k, p, layout.GetPartition(k))
		}
	}
	if layout.GetPartition(10) != -1 {
		t.Errorf("Out of range cell should map to -1")
	}
	if layout.KpartMax != 3 {
		t.Errorf("Expected KpartMax 3, got %d", layout.KpartMax)
	}
}

// TestBuildPartitions_MorePartitionsThanCells tests that surplus partitions are empty
func TestBuildPartitions_MorePartitionsThanCells(t *testing.T) {
	pb := &PartitionBuilder{
		Mesh:          &MeshConnectivity{NumElements: 2},
		NumPartitions: 4,
	}
	layout, err := pb.BuildPartitions()
	if err != nil {
		t.Fatalf("Failed to build layout: %v", err)
	}
	empty := 0
	for _, p := range layout.Partitions {
		if p.NumElements == 0 {
			empty++
		}
	}
	if empty != 2 {
		t.Errorf("Expected 2 empty partitions, got %d", empty)
	}
}

// TestBuildPartitions_TargetSize tests deriving the partition count
func TestBuildPartitions_TargetSize(t *testing.T) {
	pb := &PartitionBuilder{
		Mesh:                &MeshConnectivity{NumElements: 25},
		TargetPartitionSize: 10,
		Strategy:            RoundRobin,
	}
	layout, err := pb.BuildPartitions()
	if err != nil {
		t.Fatalf("Failed to build layout: %v", err)
	}
	if layout.NumPartitions != 3 {
		t.Errorf("Expected 3 partitions, got %d", layout.NumPartitions)
	}
}

// TestValidateLayout_DetectsErrors tests layout consistency checks
func TestValidateLayout_DetectsErrors(t *testing.T) {
	layout := &PartitionLayout{
		Partitions: []Partition{
			{ID: 0, Elements: []int{0, 1}, NumElements: 2, MaxElements: 2},
			{ID: 1, Elements: []int{2}, NumElements: 1, MaxElements: 2},
		},
		KpartMax:      2,
		TotalElements: 3,
		NumPartitions: 2,
		EToP:          []int{0, 1, 1},
	}
	if err := layout.ValidateLayout(); err == nil {
		t.Errorf("Expected error for cell 1 mapped to the wrong partition")
	}

	layout.EToP = []int{0, 0, 1}
	if err := layout.ValidateLayout(); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}

	layout.KpartMax = 3
	if err := layout.ValidateLayout(); err == nil {
		t.Errorf("Expected KpartMax mismatch error")
	}
}

func TestParseStrategy(t *testing.T) {
	for _, s := range []PartitionStrategy{BlockPartition, RoundRobin, GraphPartition, SpaceFillingCurve} {
		got, err := ParseStrategy(s.String())
		if err != nil || got != s {
			t.Errorf("ParseStrategy(%q) = %v, %v", s.String(), got, err)
		}
	}
	if _, err := ParseStrategy("metis"); err == nil {
		t.Errorf("Expected error for unknown strategy")
	}
}
