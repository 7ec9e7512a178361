package console

import (
	"fmt"
	"html"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/Tyrowin/gochat-client/internal/chat"
)

const timeLayout = "15:04"

// Renderer prints room views to a writer. It is safe for concurrent use;
// views arrive from the channel read pump while the input loop prints
// notices.
type Renderer struct {
	mu     sync.Mutex
	w      io.Writer
	policy *bluemonday.Policy
	loc    *time.Location

	room  string
	shown []chat.Message
}

// NewRenderer returns a Renderer writing to w with timestamps in loc
// (time.Local when nil).
func NewRenderer(w io.Writer, loc *time.Location) *Renderer {
	if loc == nil {
		loc = time.Local
	}
	return &Renderer{
		w:      w,
		policy: bluemonday.StrictPolicy(),
		loc:    loc,
	}
}

// View prints the difference between the last view and msgs. A room change
// or a replaced history redraws the whole room.
func (r *Renderer) View(room string, msgs []chat.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if room != r.room || len(msgs) < len(r.shown) || !slices.EqualFunc(r.shown, msgs[:len(r.shown)], sameMessage) {
		r.room = room
		r.shown = nil
		fmt.Fprintf(r.w, "--- #%s ---\n", room)
		if len(msgs) == 0 {
			fmt.Fprintln(r.w, "(no messages yet)")
		}
	}
	for _, m := range msgs[len(r.shown):] {
		fmt.Fprintln(r.w, r.line(m))
	}
	r.shown = slices.Clone(msgs)
}

// Notice prints a client-side line.
func (r *Renderer) Notice(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "* "+format+"\n", args...)
}

// Error prints err as a client-side line.
func (r *Renderer) Error(err error) {
	r.Notice("error: %v", err)
}

// Reset forgets the last view so the next one is drawn in full.
func (r *Renderer) Reset() {
	r.mu.Lock()
	r.room = ""
	r.shown = nil
	r.mu.Unlock()
}

func (r *Renderer) line(m chat.Message) string {
	var b strings.Builder
	if !m.Timestamp.IsZero() {
		b.WriteString("[")
		b.WriteString(m.Timestamp.In(r.loc).Format(timeLayout))
		b.WriteString("] ")
	}
	b.WriteString(r.clean(m.Sender))
	b.WriteString(": ")
	b.WriteString(r.clean(m.Content))
	return b.String()
}

// clean strips markup and control characters from peer-supplied text.
func (r *Renderer) clean(s string) string {
	s = html.UnescapeString(r.policy.Sanitize(s))
	return strings.Map(func(c rune) rune {
		if c == '\n' || c == '\t' {
			return ' '
		}
		if c < 0x20 || c == 0x7f {
			return -1
		}
		return c
	}, s)
}

func sameMessage(a, b chat.Message) bool {
	return a.Sender == b.Sender && a.Content == b.Content && a.Room == b.Room && a.Timestamp.Equal(b.Timestamp)
}
