package table

import "github.com/jetdb/jetdb/jet/column"

// AssignLayout fills in Number, FixedOffset, and VariableIndex for cols
// in declaration order, the bookkeeping CreateTable needs before a
// fresh set of Columns can be handed to New/EncodeTableDef. BOOLEAN
// columns get neither a fixed offset nor a variable index since they
// are stored entirely as a null-mask bit. DisplayIndex defaults to
// declaration order unless the caller assigned any explicitly.
func AssignLayout(cols []*column.Column) {
	customDisplay := false
	for _, c := range cols {
		if c.DisplayIndex != 0 {
			customDisplay = true
			break
		}
	}
	fixedOff, varIdx := 0, 0
	for i, c := range cols {
		c.Number = i
		if !customDisplay {
			c.DisplayIndex = i
		}
		switch {
		case c.Type == column.TypeBoolean:
			c.Flags |= column.FlagFixedLength
		case c.Type.IsFixedLength():
			c.Flags |= column.FlagFixedLength
			c.FixedOffset = fixedOff
			fixedOff += c.Type.FixedSize()
		default:
			c.VariableIndex = varIdx
			varIdx++
		}
	}
}
