// Package history persists finished conversion tasks in SQLite.
//
// The in-memory progress table forgets terminal tasks once their retention
// window passes; history keeps one row per finished task so operators can
// review outcomes across daemon restarts. Rows are written once, when the
// supervisor records the terminal state, and never updated.
package history
