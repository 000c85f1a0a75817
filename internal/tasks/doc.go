// Package tasks owns the lifecycle of conversion tasks.
//
// A Supervisor stages each upload into a private work directory, registers
// the task in the progress table, and runs the pipeline on a goroutine that
// outlives the submitting request. The goroutine alone performs the terminal
// transition: Completed when the pipeline returns a result, Failed for every
// error, panic, timeout, or cancellation. Finished tasks are recorded to the
// optional history store and evicted from the progress table after the
// retention window.
package tasks
