/*
Package domain contains the core domain models of the Intake engine.

It defines the typed slot values, the per-conversation Session, the structured
actions the planner emits and the error kinds callers can distinguish. This
package is kept pure and free of external dependencies like I/O or persistence,
following Hexagonal Architecture principles.

# Key Entities

  - Value: A tagged union over the slot types (string, date, boolean, integer, array).
  - Session: The per-conversation record of resolved slots, provenance and active path.
  - Action: What the presentation layer should do next (ask, lookup, descend, complete).
  - DialogueState: A read-only snapshot of a session for persistence and debugging.
*/
package domain
