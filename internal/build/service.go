package build

import (
	"context"
	"time"

	"git.home.luguber.info/inful/distbuilder/internal/config"
)

// BuildService is the canonical interface for executing builds.
type BuildService interface {
	// Run executes one build and returns its result. The error is non-nil only
	// when a required stage failed or the request was invalid.
	Run(ctx context.Context, req Request) (*Result, error)
}

// Literal is in-memory source compiled without file discovery.
type Literal struct {
	Contents string
	Loader   string
	OutFile  string
}

// Request contains all inputs of one build. It is created per invocation and
// never persisted.
type Request struct {
	// Input is an inclusion pattern relative to the source root, or an
	// absolute file path for a single-path build. Empty means the configured
	// pattern.
	Input string

	// Literal, when set, replaces file discovery.
	Literal *Literal

	Format      config.Format
	Mode        config.Mode
	Bundle      bool
	Standalone  bool
	Binary      bool
	RuntimeOnly bool
	JSOnly      bool
	NoWrite     bool
	External    []string
}

// Result contains the outcome of a build execution.
type Result struct {
	// Status indicates overall build outcome.
	Status BuildStatus

	// Report contains per-stage durations, results and counters.
	Report *Report

	// Output holds compiled text for write-suppressed literal builds.
	Output []byte

	// Duration is the total build execution time.
	Duration time.Duration
}

// BuildStatus represents the outcome of a build execution.
type BuildStatus string

const (
	// BuildStatusSuccess indicates every stage succeeded.
	BuildStatusSuccess BuildStatus = "success"

	// BuildStatusPartial indicates required stages succeeded but at least
	// one warning was recorded.
	BuildStatusPartial BuildStatus = "partial"

	// BuildStatusFailed indicates a required stage failed.
	BuildStatusFailed BuildStatus = "failed"

	// BuildStatusCancelled indicates the build was cancelled.
	BuildStatusCancelled BuildStatus = "cancelled"
)

// IsSuccess returns true if all required stages completed.
func (s BuildStatus) IsSuccess() bool {
	return s == BuildStatusSuccess || s == BuildStatusPartial
}
