package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRaySamplerIsKeyedByRayIndex(t *testing.T) {
	a := NewRaySampler(7, 12)
	b := NewRaySampler(7, 12)
	c := NewRaySampler(7, 13)

	for i := 0; i < 16; i++ {
		va, vb, vc := a.Get1D(), b.Get1D(), c.Get1D()
		assert.Equal(t, va, vb, "same ray index must replay the same stream")
		assert.NotEqual(t, va, vc)
		assert.GreaterOrEqual(t, va, 0.0)
		assert.Less(t, va, 1.0)
	}
}

func TestConstantSampler(t *testing.T) {
	s := ConstantSampler{Value: 0.25, Normal: -1}
	assert.Equal(t, 0.25, s.Get1D())
	assert.Equal(t, -1.0, s.GetNormal())
}
