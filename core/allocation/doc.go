// Package allocation implements the reallocation engine. Requests are taken
// in by Submit and held until a batch pass groups the pending ones by stop,
// asks the oracle to rank each group and either moves buses for the top K
// requests or hands the group to staff for review.
//
// Two scheduled tasks drive the engine: the expiry sweep started by Start
// and the batch loop started by StartAutonomous. Close stops both.
package allocation
