package cell

import (
	"sort"
	"strings"
	"sync"
)

// MIME is a recognized output MIME type, in the selection order the
// renderer applies (first match wins): SVG, PNG, HTML, plain text.
type MIME string

const (
	MIMESVG   MIME = "image/svg+xml"
	MIMEPNG   MIME = "image/png"
	MIMEHTML  MIME = "text/html"
	MIMEPlain MIME = "text/plain"
)

// Kind identifies which cell variant a Cell is.
type Kind string

const (
	KindText Kind = "text"
	KindCode Kind = "code"
)

// Cell is the tagged-variant interface shared by TextCell and CodeCell.
// Rendering dispatches with a type switch on the concrete variant rather
// than through virtual methods, so the set of variants stays closed.
type Cell interface {
	Hash() Hash
	Kind() Kind
	// Equals reports cell identity: hashes match and, for code cells,
	// flag sets match too.
	Equals(other Cell) bool
}

// TextCell is a prose cell. It is immutable after construction.
type TextCell struct {
	hash    Hash
	Content string
}

// NewTextCell builds a TextCell, hashing "text"+content.
func NewTextCell(content string) *TextCell {
	return &TextCell{hash: HashFromString("text" + content), Content: content}
}

func (c *TextCell) Hash() Hash { return c.hash }
func (c *TextCell) Kind() Kind { return KindText }

func (c *TextCell) Equals(other Cell) bool {
	o, ok := other.(*TextCell)
	return ok && c.hash == o.hash
}

// CodeCell is an executable cell. All exported mutators are safe for
// concurrent use, though in practice only the coordinator's single
// goroutine ever calls them.
type CodeCell struct {
	hash Hash
	Code string // modeline already stripped
	mu   sync.Mutex

	flags        map[string]bool // author-declared, from the modeline
	runtimeFlags map[string]bool // "evaluating" / "done"

	stream string
	output map[MIME]string
	errStr string
	hasErr bool

	generation int // bumped on every mutation, for render-side memoization

	round  int
	doneCh chan struct{}

	isTemplate  bool
	templateSrc string
}

// NewCodeCell builds a CodeCell from a raw body that may begin with a
// "#::flags" modeline. The modeline, if present, is stripped from Code and
// its tokens become Flags.
func NewCodeCell(rawCode string) *CodeCell {
	code, flags := stripModeline(rawCode)
	c := &CodeCell{
		hash:         HashFromString("code" + code),
		Code:         code,
		flags:        flags,
		runtimeFlags: map[string]bool{},
		doneCh:       make(chan struct{}),
	}
	return c
}

// stripModeline splits a "#::flag1 flag2\n<code>" body into (code, flags).
// Flags are lower-cased alphabetic tokens only.
func stripModeline(raw string) (string, map[string]bool) {
	start := modelineStart(raw)
	if start < 0 {
		return raw, map[string]bool{}
	}
	rest := raw[start:]
	first, remainder, found := strings.Cut(rest, "\n")
	if !found {
		first, remainder = rest, ""
	}
	flags := map[string]bool{}
	for _, tok := range strings.Fields(first) {
		tok = alphaOnly(strings.ToLower(tok))
		if tok != "" {
			flags[tok] = true
		}
	}
	return remainder, flags
}

// modelineStart locates the end of a leading "#\s*::" token, or -1 if the
// body does not begin with a modeline.
func modelineStart(raw string) int {
	i := 0
	n := len(raw)
	if i >= n || raw[i] != '#' {
		return -1
	}
	i++
	for i < n && (raw[i] == ' ' || raw[i] == '\t') {
		i++
	}
	if i+1 >= n || raw[i] != ':' || raw[i+1] != ':' {
		return -1
	}
	return i + 2
}

func alphaOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (c *CodeCell) Hash() Hash { return c.hash }
func (c *CodeCell) Kind() Kind { return KindCode }

func (c *CodeCell) Equals(other Cell) bool {
	o, ok := other.(*CodeCell)
	if !ok || c.hash != o.hash {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	o.mu.Lock()
	defer o.mu.Unlock()
	return sameFlagSet(c.flags, o.flags)
}

func sameFlagSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// Flags returns a sorted snapshot of the author-declared flags.
func (c *CodeCell) Flags() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedKeys(c.flags)
}

// RuntimeFlags returns a sorted snapshot of "evaluating"/"done".
func (c *CodeCell) RuntimeFlags() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedKeys(c.runtimeFlags)
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// HasFlag reports whether an author flag is set.
func (c *CodeCell) HasFlag(flag string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flags[flag]
}

// UpdateFlags copies other's author flags onto c if they differ, returning
// whether an update happened. Used by Document.UpdateFromSource to mark a
// retained cell dirty when only its flags changed.
func (c *CodeCell) UpdateFlags(other *CodeCell) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	other.mu.Lock()
	same := sameFlagSet(c.flags, other.flags)
	newFlags := make(map[string]bool, len(other.flags))
	for k := range other.flags {
		newFlags[k] = true
	}
	other.mu.Unlock()
	if same {
		return false
	}
	c.flags = newFlags
	c.generation++
	return true
}

// MarkEvaluating sets the "evaluating" runtime flag. Called by the
// coordinator when a cell is dispatched for execution.
func (c *CodeCell) MarkEvaluating() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runtimeFlags["evaluating"] = true
	c.generation++
}

// AppendStream appends streamed stdout/stderr text. A leading '\r' drops
// the last line first, the carriage-return overwrite semantics progress
// bars rely on.
func (c *CodeCell) AppendStream(s string) {
	if s == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if s[0] == '\r' {
		trimmed := strings.TrimSuffix(c.stream, "\n")
		if i := strings.LastIndexByte(trimmed, '\n'); i >= 0 {
			c.stream = trimmed[:i+1]
		} else {
			c.stream = ""
		}
		s = s[1:]
	}
	c.stream += s
	c.generation++
}

// Stream returns the current accumulated stdout/stderr text.
func (c *CodeCell) Stream() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream
}

// SetOutput replaces the cell's rich-media output mapping.
func (c *CodeCell) SetOutput(data map[MIME]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.output = data
	c.generation++
}

// Output returns the current output mapping, or nil if none was set.
func (c *CodeCell) Output() map[MIME]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.output
}

// SetError records pre-rendered traceback HTML.
func (c *CodeCell) SetError(html string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errStr = html
	c.hasErr = true
	c.generation++
}

// Error returns the pre-rendered traceback HTML and whether one is set.
func (c *CodeCell) Error() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errStr, c.hasErr
}

// Generation returns a counter bumped on every state-changing mutation,
// used by the renderer to invalidate its memoized HTML.
func (c *CodeCell) Generation() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Reset begins a new execution round: clears stream/output/error/done,
// reopens the completion signal, and moves the cell back from done to
// evaluating.
func (c *CodeCell) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stream = ""
	c.output = nil
	c.hasErr = false
	c.errStr = ""
	delete(c.runtimeFlags, "done")
	c.runtimeFlags["evaluating"] = true
	c.round++
	c.doneCh = make(chan struct{})
	c.generation++
}

// SetDone marks the cell done and fires the completion signal for the
// current round exactly once. Idempotent: completing an already-completed
// cell is a no-op.
func (c *CodeCell) SetDone() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runtimeFlags["done"] {
		return
	}
	delete(c.runtimeFlags, "evaluating")
	c.runtimeFlags["done"] = true
	c.generation++
	close(c.doneCh)
}

// Done reports whether the current round has completed.
func (c *CodeCell) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runtimeFlags["done"]
}

// Evaluating reports whether the cell is mid-round.
func (c *CodeCell) Evaluating() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runtimeFlags["evaluating"]
}

// Completion returns a channel closed exactly once when the current round
// finishes, for batch mode / reevaluation flows to await. A fresh channel
// is installed by Reset so a completed round can never be confused with
// the next one.
func (c *CodeCell) Completion() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doneCh
}

// SeedFromHTML restores state from a prior rendering (document.LoadFromHTML):
// marks the cell done without firing dispatch, sets output as rendered
// HTML, and optionally adds the "hide" flag.
func (c *CodeCell) SeedFromHTML(outputHTML string, done bool, hide bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.output = map[MIME]string{MIMEHTML: outputHTML}
	if done {
		c.runtimeFlags["done"] = true
		select {
		case <-c.doneCh:
		default:
			close(c.doneCh)
		}
	}
	if hide {
		c.flags["hide"] = true
	}
	c.generation++
}
