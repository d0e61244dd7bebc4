/*
Package quartet is a conversational agent service built around a fixed
four-stage pipeline: a Planner decomposes the user prompt, an Executor
works the subtasks (querying conversation history when they call for
it), a Validator checks the output and may send the Executor back for
one bounded retry, and a Composer writes the final answer plus three
follow-up suggestions.

Progress streams to the caller as an ordered event sequence: agent
switches and live tool activity while the pipeline runs, then the
answer token by token, then exactly one terminal done or error event.

# Architecture

The engine is assembled hexagonally. Ports (ports.Store,
ports.Generator, ports.EventSink, ports.DistributedLocker) decouple the
pipeline from its surroundings; adapters exist for in-memory, Redis and
SQLite persistence, for mock, OpenAI-compatible and Ollama generation,
and for HTTP (SSE) and MCP transports. Conversation history is packed
into each prompt under a token budget, with automatic re-summarization
once a session outgrows it.

# Usage

The zero-configuration engine runs entirely in memory with a
deterministic mock generator:

	eng, err := quartet.New()
	if err != nil {
		log.Fatal(err)
	}

	sink := ports.SinkFunc(func(ctx context.Context, ev domain.Event) error {
		fmt.Printf("%s\n", ev.Type)
		return nil
	})
	if err := eng.Ask(ctx, "session-1", "user-1", "Hello there", sink); err != nil {
		log.Fatal(err)
	}

Production setups inject real adapters through options: WithStore,
WithGenerator, WithLocker, WithPace, WithLogger.

Concurrent asks on the same session are serialized; asks on different
sessions run in parallel. With a distributed locker configured the same
guarantee holds across replicas.
*/
package quartet
