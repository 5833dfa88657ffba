// Package build provides the build orchestrator for distbuilder.
//
// The orchestrator is an explicit state machine. Every run walks
//
//	idle -> clearing -> classifying -> compiling -> copying_assets ->
//	normalizing_specifiers -> patching_metadata -> [styles -> binaries] ->
//	emitting_declarations -> done
//
// with failed reachable from any state. Runtime-only builds stop after
// patching_metadata. Literal builds go idle -> compiling -> write_or_return
// -> done. Required stages abort the build on error; optional stages record a
// warning and the next optional stage runs.
//
// All execution paths (CLI build, watch loop, tests) route through
// BuildService.
package build
