package dbgateway

// OperationClass is a coarse category used to select a base timeout and to
// scope circuit-breaker state. A failing batch path must not block simple
// reads, so breakers are tracked independently per class.
type OperationClass string

const (
	// OperationSimple covers single-record reads and single-record mutations.
	OperationSimple OperationClass = "simple"

	// OperationComplex covers heavily filtered or counted reads.
	OperationComplex OperationClass = "complex"

	// OperationBatch covers multi-record mutations.
	OperationBatch OperationClass = "batch"

	// OperationVector covers anything touching the vector schema, whose
	// similarity scans have a very different latency profile.
	OperationVector OperationClass = "vector"
)

// OperationClasses enumerates every class, in a stable order, for health and
// metrics surfaces.
var OperationClasses = []OperationClass{
	OperationSimple,
	OperationComplex,
	OperationBatch,
	OperationVector,
}
