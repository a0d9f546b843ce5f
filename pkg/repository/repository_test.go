package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandKind_String(t *testing.T) {
	assert.Equal(t, "query", Query.String())
	assert.Equal(t, "stored_procedure", StoredProcedure.String())
	assert.Equal(t, "CommandKind(7)", CommandKind(7).String())
}

func TestCommandKind_Valid(t *testing.T) {
	assert.True(t, Query.Valid())
	assert.True(t, StoredProcedure.Valid())
	assert.False(t, CommandKind(-1).Valid())
	assert.False(t, CommandKind(2).Valid())
}

func TestParseCommandKind(t *testing.T) {
	tests := []struct {
		input string
		want  CommandKind
	}{
		{"query", Query},
		{"TEXT", Query},
		{" procedure ", StoredProcedure},
		{"proc", StoredProcedure},
		{"sp", StoredProcedure},
		{"StoredProcedure", StoredProcedure},
		{"stored_procedure", StoredProcedure},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCommandKind(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseCommandKind("batch")
	assert.ErrorIs(t, err, ErrUnknownCommandKind)
}
