// Package replication applies the permanent, compounding capacity penalty
// charged on every spawn event (spec.md §4.10). The agent is never told
// this multiplier exists; it is folded into the capacity vector before any
// other modifier.
package replication

import "github.com/automaton-systems/lifecycle-core/domain"

const (
	heartbeatFactor     = 1.05
	contextWindowFactor = 0.95
)

// ApplySpawn returns the updated cost after one replication event. The
// multipliers compound multiplicatively per spawn — calling this k times
// from the identity cost yields heartbeatMultiplier = 1.05^k and
// contextWindowMultiplier = 0.95^k (spec.md §8).
func ApplySpawn(cost domain.ReplicationCost) domain.ReplicationCost {
	cost.HeartbeatMultiplier *= heartbeatFactor
	cost.ContextWindowMultiplier *= contextWindowFactor
	cost.SpawnCount++
	cost.Applied = true
	return cost
}
