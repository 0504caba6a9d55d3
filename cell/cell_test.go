package cell

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashDeterministic(t *testing.T) {
	a := NewTextCell("# Title")
	b := NewTextCell("# Title")
	assert.Equal(t, a.Hash(), b.Hash())
}

func TestTextCellEquality(t *testing.T) {
	a := NewTextCell("hello")
	b := NewTextCell("hello")
	c := NewTextCell("world")
	assert.True(t, a.Equals(b))
	assert.False(t, a.Equals(c))
}

func TestCodeCellModelineStripped(t *testing.T) {
	c := NewCodeCell("#::hide\nprint(1)")
	assert.Equal(t, "print(1)", c.Code)
	assert.True(t, c.HasFlag("hide"))
}

func TestCodeCellNoModeline(t *testing.T) {
	c := NewCodeCell("print(1+1)")
	assert.Equal(t, "print(1+1)", c.Code)
	assert.Empty(t, c.Flags())
}

func TestCodeCellHashIgnoresModeline(t *testing.T) {
	// Flag-only change: modeline is stripped before hashing, so the hash
	// family is the same even though flags differ.
	a := NewCodeCell("print(1)")
	b := NewCodeCell("#::hide\nprint(1)")
	assert.Equal(t, a.Hash(), b.Hash())
	assert.False(t, a.Equals(b), "flags differ so cells are not equal")
}

func TestAppendStreamCarriageReturn(t *testing.T) {
	c := NewCodeCell("print(1)")
	c.AppendStream("a\n")
	c.AppendStream("\rb")
	assert.Equal(t, "b", c.Stream())
}

func TestSetDoneIdempotent(t *testing.T) {
	c := NewCodeCell("print(1)")
	done := c.Completion()
	c.SetDone()
	c.SetDone() // no panic, no double-close
	select {
	case <-done:
	default:
		t.Fatal("completion signal did not fire")
	}
	assert.True(t, c.Done())
	assert.False(t, c.Evaluating())
}

func TestResetReopensCompletion(t *testing.T) {
	c := NewCodeCell("print(1)")
	c.SetDone()
	first := c.Completion()
	c.Reset()
	second := c.Completion()
	assert.NotEqual(t, first, second)
	assert.False(t, c.Done())
	assert.True(t, c.Evaluating())
	c.SetDone()
	select {
	case <-second:
	default:
		t.Fatal("new completion signal did not fire")
	}
}

func TestUpdateFlagsDirty(t *testing.T) {
	a := NewCodeCell("print(1)")
	b := NewCodeCell("#::hide\nprint(1)")
	gen := a.Generation()
	changed := a.UpdateFlags(b)
	require.True(t, changed)
	assert.True(t, a.HasFlag("hide"))
	assert.Greater(t, a.Generation(), gen)

	changedAgain := a.UpdateFlags(b)
	assert.False(t, changedAgain)
}

func TestTemplateCellDesugars(t *testing.T) {
	c := NewTemplateCell("Hello {{name}}")
	assert.True(t, c.IsTemplate())
	assert.True(t, c.HasFlag("hide"))
	assert.Contains(t, c.Code, "render_template")
}

func TestSeedFromHTML(t *testing.T) {
	c := NewCodeCell("print(1)")
	c.SeedFromHTML("<pre>2</pre>", true, true)
	assert.True(t, c.Done())
	assert.True(t, c.HasFlag("hide"))
	out := c.Output()
	require.NotNil(t, out)
	assert.Equal(t, "<pre>2</pre>", out[MIMEHTML])
}
