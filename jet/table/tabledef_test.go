package table

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jetdb/jetdb/jet/column"
)

func TestTableDefRoundtrip(t *testing.T) {
	def := TableDef{
		Name: "Employees",
		Columns: []*column.Column{
			intCol(0, "Id", false),
			textCol(1, "Name", 0),
		},
		AutoNumberSeeds: map[int]int32{0: 42},
		Extra:           []byte{1, 2, 3, 4},
	}

	encoded := EncodeTableDef(def)
	decoded, err := DecodeTableDef(encoded)
	require.NoError(t, err)

	require.Equal(t, "Employees", decoded.Name)
	require.Len(t, decoded.Columns, 2)
	require.Equal(t, "Id", decoded.Columns[0].Name)
	require.Equal(t, "Name", decoded.Columns[1].Name)
	require.Equal(t, int32(42), decoded.AutoNumberSeeds[0])
	require.Equal(t, []byte{1, 2, 3, 4}, decoded.Extra)
}
