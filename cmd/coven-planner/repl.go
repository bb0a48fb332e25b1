// ABOUTME: Interactive read-eval loop for the terminal client
// ABOUTME: Renders the conversation from store snapshots and handles slash commands and retry

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/2389/coven-planner/internal/conversation"
	"github.com/2389/coven-planner/internal/render"
	"github.com/2389/coven-planner/internal/store"
)

// spinnerFrames are drawn while a mutation is pending.
var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const spinnerInterval = 100 * time.Millisecond

// clearLine returns the cursor to column 0 and erases the line.
const clearLine = "\r\033[K"

// repl drives one conversation at a time from a line-oriented input.
// Everything shown about the conversation comes from store snapshots.
type repl struct {
	in       io.Reader
	out      io.Writer
	st       *store.Store
	coord    *conversation.Coordinator
	renderer *render.Renderer

	// spinner enables the loading indicator; off when out is not a terminal.
	spinner bool

	key   string
	view  *view
	lines <-chan string
	errs  <-chan error

	outMu    sync.Mutex
	spinning bool

	mu         sync.Mutex
	lastFailed string
	clearing   bool

	agent *color.Color
	errc  *color.Color
	dim   *color.Color
}

func newREPL(in io.Reader, out io.Writer, st *store.Store, coord *conversation.Coordinator, renderer *render.Renderer) *repl {
	return &repl{
		in:       in,
		out:      out,
		st:       st,
		coord:    coord,
		renderer: renderer,
		spinner:  !color.NoColor,
		agent:    color.New(color.FgMagenta, color.Bold),
		errc:     color.New(color.FgRed),
		dim:      color.New(color.FgHiBlack),
	}
}

// write runs fn with exclusive access to the output. A spinner frame on the
// current line is erased first.
func (r *repl) write(fn func(w io.Writer)) {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	if r.spinning {
		fmt.Fprint(r.out, clearLine)
	}
	fn(r.out)
}

func (r *repl) printf(format string, args ...any) {
	r.write(func(w io.Writer) { fmt.Fprintf(w, format, args...) })
}

// rememberFailure is the coordinator's failure handler. Only submits can be
// retried; a failed reset is simply reported.
func (r *repl) rememberFailure(f *conversation.TransportFailure) {
	if f.Text == "" {
		return
	}
	r.mu.Lock()
	r.lastFailed = f.Text
	r.mu.Unlock()
}

func (r *repl) takeFailed() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	text := r.lastFailed
	r.lastFailed = ""
	return text
}

func (r *repl) setClearing(v bool) {
	r.mu.Lock()
	r.clearing = v
	r.mu.Unlock()
}

func (r *repl) isClearing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clearing
}

// run reads lines until EOF, /quit, or ctx is cancelled. An empty key makes
// it ask for a user id first.
func (r *repl) run(ctx context.Context, key string) error {
	done := make(chan struct{})
	defer close(done)
	r.lines, r.errs = r.readLines(done)

	if key == "" {
		var ok bool
		var err error
		if key, ok, err = r.promptKey(ctx, ""); !ok {
			return err
		}
	}
	r.switchKey(ctx, key)
	defer func() { r.view.stop() }()

	for {
		r.printf("> ")
		input, ok, err := r.read(ctx)
		if !ok {
			return err
		}
		if input == "" {
			continue
		}
		quit, err := r.handle(ctx, input)
		if quit || err != nil {
			return err
		}
		r.printf("\n")
	}
}

// read returns the next trimmed input line. ok is false on EOF or when ctx
// is done; err is set only for read failures.
func (r *repl) read(ctx context.Context) (line string, ok bool, err error) {
	select {
	case <-ctx.Done():
		return "", false, nil
	case err := <-r.errs:
		if err != nil {
			return "", false, fmt.Errorf("reading input: %w", err)
		}
		return "", false, nil
	case line := <-r.lines:
		return strings.TrimSpace(line), true, nil
	}
}

// readLines feeds input lines into a channel until the input ends or done
// is closed. errs yields the scanner error (nil on EOF) and is closed when
// the reader goroutine exits.
func (r *repl) readLines(done <-chan struct{}) (<-chan string, <-chan error) {
	lines := make(chan string)
	errs := make(chan error, 1)
	go func() {
		defer close(errs)
		scanner := bufio.NewScanner(r.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		errs <- scanner.Err()
	}()
	return lines, errs
}

// promptKey asks for a user id. An empty answer keeps current when there is
// one.
func (r *repl) promptKey(ctx context.Context, current string) (string, bool, error) {
	for {
		if current == "" {
			r.printf("User id: ")
		} else {
			r.printf("User id [%s]: ", current)
		}
		line, ok, err := r.read(ctx)
		if !ok {
			return "", false, err
		}
		if line != "" {
			return line, true, nil
		}
		if current != "" {
			return current, true, nil
		}
	}
}

// switchKey makes key the active conversation and starts rendering it.
func (r *repl) switchKey(ctx context.Context, key string) {
	if r.view != nil {
		r.view.stop()
	}
	r.key = key
	r.write(func(w io.Writer) { r.dim.Fprintf(w, "Chatting as %s\n\n", key) })
	r.view = r.follow(ctx, key)
	r.catchUp()
}

// catchUp blocks until the view has rendered the store's latest change.
func (r *repl) catchUp() {
	r.view.wait(r.st.Version(r.key))
}

// handle runs one input line and reports whether the loop should stop.
func (r *repl) handle(ctx context.Context, input string) (bool, error) {
	switch {
	case input == "/quit" || input == "/exit" || input == "/q":
		return true, nil
	case input == "/help":
		r.printHelp()
	case input == "/reset":
		return r.reset(ctx)
	case input == "/retry":
		text := r.takeFailed()
		if text == "" {
			r.printf("Nothing to retry.\n")
			return false, nil
		}
		r.write(func(w io.Writer) { r.dim.Fprintf(w, "Retrying: %s\n", text) })
		r.submit(ctx, text)
	case input == "/history":
		r.printHistory()
	case strings.HasPrefix(input, "/"):
		r.printf("Unknown command %s. /help for commands.\n", input)
	default:
		r.submit(ctx, input)
	}
	return false, nil
}

func (r *repl) submit(ctx context.Context, text string) {
	stop := r.startSpinner()
	res, err := r.coord.Submit(ctx, r.key, text)
	stop()
	r.catchUp()

	if err != nil {
		r.write(func(w io.Writer) {
			r.errc.Fprintf(w, "[error] %v\n", err)
			var failure *conversation.TransportFailure
			if errors.As(err, &failure) {
				r.dim.Fprintln(w, "/retry to send it again.")
			}
		})
		return
	}

	// A successful send leaves nothing to retry
	r.takeFailed()

	if res.Superseded {
		r.write(func(w io.Writer) { r.dim.Fprintln(w, "(reply discarded: conversation was reset)") })
	}
}

// reset clears the conversation and then asks which user id to continue
// as, defaulting to the current one.
func (r *repl) reset(ctx context.Context) (bool, error) {
	r.setClearing(true)
	stop := r.startSpinner()
	err := r.coord.Reset(ctx, r.key)
	stop()
	r.catchUp()
	r.setClearing(false)

	if err != nil {
		r.write(func(w io.Writer) { r.errc.Fprintf(w, "[error] %v\n", err) })
		return false, nil
	}
	r.takeFailed()
	r.printf("Conversation reset.\n")

	key, ok, err := r.promptKey(ctx, r.key)
	if !ok {
		return true, err
	}
	r.switchKey(ctx, key)
	return false, nil
}

func (r *repl) printHistory() {
	transcript := r.coord.Transcript(r.key)
	r.write(func(w io.Writer) {
		if len(transcript) == 0 {
			fmt.Fprintln(w, "No messages yet.")
			return
		}
		for _, msg := range transcript {
			r.printMessage(w, msg)
		}
	})
}

func (r *repl) printMessage(w io.Writer, msg store.Message) {
	if msg.Role == store.RoleAgent {
		r.agent.Fprint(w, "agent: ")
		fmt.Fprintln(w, r.renderer.Render(msg.Text))
		return
	}
	r.dim.Fprint(w, "you: ")
	fmt.Fprintln(w, msg.Text)
}

// printHelp displays available commands.
func (r *repl) printHelp() {
	r.write(func(w io.Writer) {
		fmt.Fprintln(w, "Commands:")
		fmt.Fprintln(w, "  /reset     Clear the conversation and choose a user id")
		fmt.Fprintln(w, "  /retry     Resend the last message that failed")
		fmt.Fprintln(w, "  /history   Show the conversation so far")
		fmt.Fprintln(w, "  /help      Show this help")
		fmt.Fprintln(w, "  /quit      Exit")
	})
}

// startSpinner draws the loading indicator until the returned stop is
// called. stop clears the line and returns once drawing has ended.
func (r *repl) startSpinner() (stop func()) {
	if !r.spinner {
		return func() {}
	}

	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(spinnerInterval)
		defer ticker.Stop()
		for i := 0; ; i++ {
			r.outMu.Lock()
			r.spinning = true
			r.dim.Fprintf(r.out, "%s%s waiting for reply", clearLine, spinnerFrames[i%len(spinnerFrames)])
			r.outMu.Unlock()

			select {
			case <-done:
				r.outMu.Lock()
				r.spinning = false
				fmt.Fprint(r.out, clearLine)
				r.outMu.Unlock()
				return
			case <-ticker.C:
			}
		}
	}()

	return func() {
		close(done)
		<-finished
	}
}
