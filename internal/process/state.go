package process

// phase tracks which goroutine owns finalization of a run.
//
//	starting -> watching -> draining -> finishing (natural exit)
//	                     |           `-> killing  (Kill while output drains)
//	                     `-> killing              (Kill)
//
// Every transition out of watching or draining is a compare-and-set, so
// exactly one of the watcher and Kill writes the terminal log line and result.
type phase = int32

const (
	phaseStarting phase = iota
	phaseWatching
	phaseDraining
	phaseFinishing
	phaseKilling
)
