package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aretw0/quartet/pkg/domain"
	"github.com/aretw0/quartet/pkg/ports"
)

// Asker runs one chat request, streaming events to the sink. The root
// quartet.Engine satisfies it.
type Asker interface {
	Ask(ctx context.Context, sessionID, userID, prompt string, sink ports.EventSink) error
}

// Chat is the interactive prompt loop over an engine. An interrupt
// during a reply cancels that reply; at the prompt it ends the session.
type Chat struct {
	Asker     Asker
	SessionID string
	UserID    string

	Input  io.Reader // defaults to os.Stdin
	Output io.Writer // defaults to os.Stdout

	// Renderer renders the final answer's markdown. When nil, tokens
	// stream to Output as they arrive instead.
	Renderer func(string) (string, error)

	// JSON emits every stream event as one JSON line and suppresses
	// prompts and notices.
	JSON bool
}

type inputResult struct {
	text string
	err  error
}

// Run reads prompts until EOF, an exit command or an interrupt at the
// prompt.
func (c *Chat) Run(ctx context.Context) error {
	in := c.Input
	if in == nil {
		in = os.Stdin
	}
	out := c.Output
	if out == nil {
		out = os.Stdout
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	lines := make(chan inputResult)
	go pump(in, lines)

	for {
		if !c.JSON {
			fmt.Fprint(out, "> ")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-sigCh:
			// Interrupt at the prompt ends the session.
			fmt.Fprintln(out)
			if !c.JSON {
				printSystemMessage(out, "Bye.")
			}
			return nil
		case res, ok := <-lines:
			if !ok {
				if !c.JSON {
					fmt.Fprintln(out)
				}
				return nil
			}
			if res.err != nil {
				return fmt.Errorf("read input: %w", res.err)
			}

			prompt := strings.TrimSpace(res.text)
			if prompt == "" {
				continue
			}
			if !c.JSON && (prompt == "exit" || prompt == "quit") {
				printSystemMessage(out, "Bye.")
				return nil
			}

			clean, err := SanitizeInput(prompt)
			if err != nil {
				fmt.Fprintf(out, "Error: %v. Please try again.\n", err)
				continue
			}

			c.ask(ctx, sigCh, out, clean)
		}
	}
}

// pump feeds lines from the reader into the channel so the loop can
// select between input, signals and cancellation.
func pump(in io.Reader, lines chan<- inputResult) {
	reader := bufio.NewReader(in)
	for {
		text, err := reader.ReadString('\n')
		if text != "" {
			lines <- inputResult{text: text}
		}
		if err != nil {
			if err != io.EOF {
				lines <- inputResult{err: err}
			}
			close(lines)
			return
		}
	}
}

// ask runs one request. A signal while it is in flight cancels only
// this request; the loop continues afterwards.
func (c *Chat) ask(ctx context.Context, sigCh <-chan os.Signal, out io.Writer, prompt string) {
	askCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	interrupted := make(chan struct{})
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		select {
		case <-sigCh:
			close(interrupted)
			cancel()
		case <-askCtx.Done():
		}
	}()

	err := c.Asker.Ask(askCtx, c.SessionID, c.UserID, prompt, c.newSink(out))
	cancel()
	<-watchDone

	if err == nil {
		return
	}
	select {
	case <-interrupted:
		fmt.Fprintln(out)
		if !c.JSON {
			printSystemMessage(out, "Interrupted.")
		}
	default:
		if errors.Is(err, context.Canceled) {
			return
		}
		if !c.JSON {
			printSystemMessage(out, "Error: %v", err)
		}
	}
}

// newSink builds the per-request event consumer. JSON mode emits raw
// events as JSON lines; text mode prints stage notices, the answer and
// the follow-up suggestions.
func (c *Chat) newSink(out io.Writer) ports.EventSink {
	if c.JSON {
		enc := json.NewEncoder(out)
		return ports.SinkFunc(func(_ context.Context, ev domain.Event) error {
			return enc.Encode(ev)
		})
	}

	return ports.SinkFunc(func(_ context.Context, ev domain.Event) error {
		switch ev.Type {
		case domain.EventAgent:
			if p, ok := ev.Data.(domain.AgentPayload); ok {
				printSystemMessage(out, "%s", p.Name)
			}
		case domain.EventToken:
			if c.Renderer == nil {
				if p, ok := ev.Data.(domain.TokenPayload); ok {
					fmt.Fprint(out, p.Text)
				}
			}
		case domain.EventDone:
			p, ok := ev.Data.(domain.DonePayload)
			if !ok {
				return nil
			}
			if c.Renderer != nil {
				rendered, err := c.Renderer(p.FullText)
				if err != nil {
					rendered = p.FullText
				}
				fmt.Fprintln(out, strings.TrimSpace(rendered))
			} else {
				fmt.Fprintln(out)
			}
			if len(p.Suggestions) > 0 {
				fmt.Fprintln(out)
				for i, s := range p.Suggestions {
					fmt.Fprintf(out, "  %d. %s\n", i+1, s)
				}
			}
		}
		return nil
	})
}
