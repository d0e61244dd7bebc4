/*
Package ports defines the driven ports (interfaces) for the Quartet pipeline.

These interfaces decouple the core logic from external implementations,
allowing the pipeline to work with various storage backends, text
generators, and event transports.

# Key Interfaces

  - Generator: Produces text for the Planner, Composer and Summarizer.
  - Store: Persists sessions, messages, summaries, suggestions, metrics
    and tool call logs.
  - Querier: The bounded history query the Executor issues as a tool call.
  - EventSink: Receives the ordered stream events of one request.
  - Summarizer: Compresses full session history into a running summary.
  - DistributedLocker: Provides distributed locking for handling
    concurrent asks on one session across replicas.
*/
package ports
