package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Type
		want bool
	}{
		{"same int", I64, Int{Width: 64}, true},
		{"int widths", I32, I64, false},
		{"same float", F64, Float{Width: 64}, true},
		{"float widths", F32, F64, false},
		{"int vs float", I64, F64, false},
		{"nil vs nil", nil, nil, true},
		{"nil vs int", nil, I8, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
		})
	}
}

func TestSizeAndString(t *testing.T) {
	assert.Equal(t, 8, F64.Size())
	assert.Equal(t, 4, F32.Size())
	assert.Equal(t, 1, I8.Size())
	assert.Equal(t, "I16", I16.String())
	assert.Equal(t, "F32", F32.String())
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(I8))
	assert.True(t, Valid(F32))
	assert.False(t, Valid(Int{Width: 1}))
	assert.False(t, Valid(Float{Width: 16}))
	assert.False(t, Valid(nil))
}
