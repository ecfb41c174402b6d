package constants

// RunStatus is the canonical status for rows in extract_run.
type RunStatus string

// Stable values (store these exact strings in DB).
const (
	RunStatusRunning RunStatus = "RUNNING" // documents being reconstructed
	RunStatusOK      RunStatus = "OK"      // records written
	RunStatusFailed  RunStatus = "FAILED"  // terminal failure
)

// Strategy names accepted by config, CLI flags and the gRPC service.
const (
	StrategyBlocks = "blocks"
	StrategyFields = "fields"
)

// StatuteCodes are the code-book tokens that mark a charge line.
var StatuteCodes = []string{"VC", "PC", "HS", "BP"}
