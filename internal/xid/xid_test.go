package xid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewIsPrefixedAndUnique(t *testing.T) {
	a := New("tx")
	b := New("tx")

	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "tx-"))
	assert.Len(t, a, len("tx-")+32)
}

func TestNewWithoutPrefix(t *testing.T) {
	id := New("")
	assert.Len(t, id, 32)
	assert.NotContains(t, id, "-")
}
