/*
Package domain contains the core domain models for the Quartet pipeline.

It defines the request state threaded through the four stage agents, the
stream events emitted while a request is in flight, and the persisted
record shapes the store adapters traffic in. This package is kept pure
and free of external dependencies like I/O or persistence, following
Hexagonal Architecture principles.

# Key Entities

  - RequestState: The per-request record mutated stage by stage (Planner,
    Executor, Validator, Composer).
  - Event: One externally observable emission (agent switch, tool call,
    token, done, error).
  - Message / Session / SuggestionRecord / MetricsRecord / ToolCallRecord:
    The persisted shapes written after a request completes.
  - LifecycleHooks: Optional callbacks for observing stage and tool
    activity.
*/
package domain
