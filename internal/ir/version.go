package ir

// Version constants for the persisted formats and the engine.
const (
	// SnapshotVersion is the current engine snapshot format.
	SnapshotVersion = 2

	// EngineVersion is the sale engine implementation version.
	EngineVersion = "1.0.0"

	// EngineName identifies the sale engine implementation.
	EngineName = "capsale/sale-engine"
)
