package idhash

import "testing"

func TestComputeActionID_Deterministic(t *testing.T) {
	id1 := ComputeActionID("run-1", "miner1", "TRANSFER", 1)
	id2 := ComputeActionID("run-1", "miner1", "TRANSFER", 1)

	if id1 != id2 {
		t.Errorf("expected same ID, got %s and %s", id1, id2)
	}
	if len(id1) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(id1))
	}
}

func TestComputeActionID_DifferentInputs(t *testing.T) {
	base := ComputeActionID("run-1", "miner1", "TRANSFER", 1)

	variants := []string{
		ComputeActionID("run-2", "miner1", "TRANSFER", 1),
		ComputeActionID("run-1", "miner2", "TRANSFER", 1),
		ComputeActionID("run-1", "miner1", "MOVE", 1),
		ComputeActionID("run-1", "miner1", "TRANSFER", 2),
	}
	for i, v := range variants {
		if v == base {
			t.Errorf("variant %d collides with base ID", i)
		}
	}
}
