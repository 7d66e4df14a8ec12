package column

import (
	"testing"

	"github.com/jetdb/jetdb/jet/page"
	"github.com/stretchr/testify/require"
)

func TestLvalDescriptorRoundTrip(t *testing.T) {
	d := DescribeOverflow(500, page.RowId{Page: 42, Row: 3})
	wire := d.Encode()

	parsed, err := ParseLvalDescriptor(wire)
	require.NoError(t, err)
	require.Equal(t, uint32(500), parsed.Length)
	require.Equal(t, LvalOverflow, parsed.Type)
	require.Equal(t, page.RowId{Page: 42, Row: 3}, parsed.overflowRow())
}

func TestReadLvalInline(t *testing.T) {
	d := DescribeInline(5)
	payload := []byte("hello world")

	out, err := ReadLval(d, payload, nil)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), out)
}

type fakeRows struct {
	rows map[page.RowId][]byte
}

func (f *fakeRows) ReadRow(id page.RowId) ([]byte, error) {
	return f.rows[id], nil
}

func TestReadLvalSingleOverflow(t *testing.T) {
	rows := &fakeRows{rows: map[page.RowId][]byte{
		{Page: 9, Row: 1}: []byte("the quick brown fox"),
	}}
	d := DescribeOverflow(9, page.RowId{Page: 9, Row: 1})

	out, err := ReadLval(d, nil, rows)
	require.NoError(t, err)
	require.Equal(t, "the quick", string(out))
}

func TestReadLvalChain(t *testing.T) {
	rows := &fakeRows{rows: map[page.RowId][]byte{
		{Page: 10, Row: 0}: append([]byte{2, 11, 0, 0}, []byte("hello ")...),
		{Page: 11, Row: 2}: append([]byte{0, 0, 0, 0}, []byte("world!")...),
	}}
	d := DescribeChain(12, page.RowId{Page: 10, Row: 0})

	out, err := ReadLval(d, nil, rows)
	require.NoError(t, err)
	require.Equal(t, "hello world!", string(out))
}

func TestReadLvalChainTruncatedByDeclaredLength(t *testing.T) {
	rows := &fakeRows{rows: map[page.RowId][]byte{
		{Page: 10, Row: 0}: append([]byte{0, 0, 0, 0}, []byte("hello world!")...),
	}}
	d := DescribeChain(5, page.RowId{Page: 10, Row: 0})

	out, err := ReadLval(d, nil, rows)
	require.NoError(t, err)
	require.Equal(t, "hello", string(out))
}
