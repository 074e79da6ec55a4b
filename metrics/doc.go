/*
Package metrics exposes Prometheus instrumentation for node calls and store
operations.

A MetricsServer owns a private registry and serves it on its own listener.
Recorder collects the counters and histograms; a nil *Recorder is valid and
records nothing, so components can be built without metrics in tests.
*/
package metrics
