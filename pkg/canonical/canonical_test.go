package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalSortsKeys(t *testing.T) {
	out, err := Marshal(map[string]any{"b": 1, "a": "x", "c": true})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"x","b":1,"c":true}`, string(out))
}

func TestFingerprintIgnoresKeyOrder(t *testing.T) {
	a, err := Fingerprint(map[string]any{"x": 1, "y": 2})
	require.NoError(t, err)
	b, err := Fingerprint(map[string]any{"y": 2, "x": 1})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestFingerprintDiffersByValue(t *testing.T) {
	a, err := Fingerprint(map[string]any{"x": 1})
	require.NoError(t, err)
	b, err := Fingerprint(map[string]any{"x": 2})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestChainHashDependsOnPrev(t *testing.T) {
	content := []byte(`{"a":1}`)
	assert.NotEqual(t, ChainHash(content, "head-1"), ChainHash(content, "head-2"))
	assert.Equal(t, ChainHash(content, "head-1"), ChainHash(content, "head-1"))
}

func TestHashStringIsStable(t *testing.T) {
	assert.Equal(t, HashString("nonce"), HashString("nonce"))
	assert.NotEqual(t, HashString("nonce"), HashString("nonce2"))
	assert.Len(t, HashString("nonce"), 64)
}
