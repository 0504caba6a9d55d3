package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/knitj/knitj/cell"
	"github.com/knitj/knitj/jupyter"
)

func TestResolveReturnsStoredHashForKnownParent(t *testing.T) {
	a := &Adapter{}
	want := cell.HashFromString("code" + "x = 1")
	a.correlation.Store("msg-1", want)

	got, ok := a.resolve(jupyter.Header{MsgID: "msg-1"})
	assert.True(t, ok)
	assert.Equal(t, want, got)
}

func TestResolveFailsForUnknownParent(t *testing.T) {
	a := &Adapter{}
	_, ok := a.resolve(jupyter.Header{MsgID: "never-seen"})
	assert.False(t, ok)
}

func TestResolveFailsForEmptyParentHeader(t *testing.T) {
	a := &Adapter{}
	_, ok := a.resolve(jupyter.Header{})
	assert.False(t, ok)
}
