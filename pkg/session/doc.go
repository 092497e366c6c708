/*
Package session implements session management and persistence orchestration.

Manager serialises load-mutate-save cycles per session ID with reference
counted local mutexes, optionally backed by a distributed lock so several
replicas can share one store.
*/
package session
