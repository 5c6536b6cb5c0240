package policy

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewWASMRejectsInvalidBytecode(t *testing.T) {
	_, err := NewWASM(context.Background(), []byte("not wasm"), time.Second, slog.Default())
	require.Error(t, err)
}

func TestNewWASMRejectsEmptyModule(t *testing.T) {
	_, err := NewWASM(context.Background(), nil, time.Second, slog.Default())
	require.Error(t, err)
}
