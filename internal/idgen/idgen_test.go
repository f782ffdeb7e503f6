package idgen

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_IsUUID(t *testing.T) {
	id := New()
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.NotEqual(t, id, New())
}

func TestWithPrefix(t *testing.T) {
	id := WithPrefix("pay_")
	assert.True(t, strings.HasPrefix(id, "pay_"))
	assert.Len(t, id, len("pay_")+26)
	assert.Equal(t, strings.ToLower(id), id)
}

func TestWithPrefix_Sortable(t *testing.T) {
	a := WithPrefix("x_")
	b := WithPrefix("x_")
	assert.LessOrEqual(t, a[:12], b[:12], "ULID timestamp prefix must be monotonic across calls")
}
