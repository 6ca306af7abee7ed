package embedding

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/df07/go-nerfw-renderer/pkg/core"
)

// Channel is one conditioning input of the field: either Disabled, or Enabled with
// the table its codes come from. The zero value is Disabled.
type Channel struct {
	table *Table
}

// Disabled returns a channel that contributes nothing to the field input
func Disabled() Channel {
	return Channel{}
}

// Enabled returns a channel backed by table
func Enabled(table *Table) Channel {
	return Channel{table: table}
}

// Enabled reports whether the channel feeds the field
func (c Channel) Enabled() bool {
	return c.table != nil
}

// Dim returns the code width, 0 when disabled
func (c Channel) Dim() int {
	if c.table == nil {
		return 0
	}
	return c.table.Dim()
}

// Table returns the backing table, nil when disabled
func (c Channel) Table() *Table {
	return c.table
}

// Resolve turns per-ray codes into an n×Dim matrix. Disabled channels resolve to nil.
func (c Channel) Resolve(codes core.Codes, n int) (*mat.Dense, error) {
	if c.table == nil {
		return nil, nil
	}
	if m := codes.Len(); m != n {
		if m == 1 && n > 1 {
			return nil, errors.Wrapf(core.ErrCodeCount, "%s: one batch-level code for %d rays", c.table.name, n)
		}
		return nil, errors.Wrapf(core.ErrCodeCount, "%s: %d codes for %d rays", c.table.name, m, n)
	}
	if !codes.Embedded() {
		return c.table.LookupBatch(codes.IDs)
	}

	dim := c.table.Dim()
	out := mat.NewDense(n, dim, nil)
	for i, v := range codes.Vectors {
		if len(v) != dim {
			return nil, errors.Wrapf(core.ErrChannelMismatch, "%s: ray %d code has %d values, want %d", c.table.name, i, len(v), dim)
		}
		out.SetRow(i, v)
	}
	return out, nil
}
