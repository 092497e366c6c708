/*
Package ports defines the driven ports (interfaces) of the intake engine.

These interfaces decouple dialogue logic from storage backends, record sources
and transports.

# Key Interfaces

  - SessionStore: persists dialogue sessions between turns (memory, file, Redis).
  - RecordProvider: looks up existing patient records (memory, SQLite, cached).
  - DistributedLocker: serialises access to a session across replicas.
  - IntakeService: the session-by-ID API consumed by the HTTP and MCP adapters.

RunSessionStoreContract and RunRecordProviderContract are shared test suites
every adapter runs against itself.
*/
package ports
