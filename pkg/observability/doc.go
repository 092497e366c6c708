/*
Package observability turns engine lifecycle hooks into Prometheus metrics and
structured log lines.

Both helpers return a domain.LifecycleHooks value; combine them with
LifecycleHooks.Merge and pass the result to intake.WithLifecycleHooks.
*/
package observability
