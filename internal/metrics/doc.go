// Package metrics provides observability hooks for distbuilder builds.
//
// Components receive a Recorder through dependency injection. NoopRecorder is
// the default and costs nothing; PrometheusRecorder forwards to a
// client_golang registry which HTTPHandler can expose (see `watch --metrics-addr`).
//
//	rec := metrics.NewPrometheusRecorder(prom.NewRegistry())
//	orch := build.NewOrchestrator(cfg, build.WithRecorder(rec))
package metrics
