// Package output owns every mutation of the output tree: full clears,
// single-path invalidation, artifact writes, asset copies, the temporary
// derived compiler configuration and the package descriptor patch.
//
// Full builds use the full-clear policy (Clear before any write). Builds of a
// single absolute path use the single-path policy (Invalidate of exactly one
// destination). Writes to disjoint paths are safe to run concurrently.
package output
