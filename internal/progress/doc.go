// Package progress tracks the lifecycle of conversion tasks.
//
// Store is a concurrent table keyed by task ID. Each entry moves through
// Pending, Running, and one terminal state (Completed or Failed); terminal
// states are sticky and the first terminal transition wins. Segment workers
// call Increment concurrently for the same task, while pollers read the
// rendered status through Query. Operations on distinct task IDs never
// contend on a shared lock.
package progress
