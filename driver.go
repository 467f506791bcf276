package pal

// CommandBatch is an opaque driver-owned handle for a batch being
// recorded. Drivers return whatever type suits them from BeginBatch and
// receive it back on every call for that batch.
type CommandBatch = any

// Driver executes sequenced batches against a real or simulated device.
// Calls for one queue arrive in submission order; SequencedEpoch.Submit
// never interleaves batches.
//
// Implementations live under backend/.
type Driver interface {
	// BeginBatch opens a command batch on the given queue.
	BeginBatch(queue QueueID, label string) (CommandBatch, error)

	// InsertBarrier records a pipeline barrier into the batch.
	InsertBarrier(cb CommandBatch, b Barrier) error

	// RecordOperation records the commands of one operation. The driver
	// decides what an operation's commands are; the engine only orders
	// them.
	RecordOperation(cb CommandBatch, op OperationID) error

	// Submit closes the batch and submits it with its semaphore waits
	// and signal. Signal.Waiters reports how many later batches wait on
	// the signal, letting binary-semaphore drivers size their allocation.
	Submit(queue QueueID, cb CommandBatch, waits []SemaphoreWait, signal SemaphoreSignal) error
}
