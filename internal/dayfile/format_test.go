package dayfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/volatiletech/null.v6"

	"github.com/barshanhassan/enexory-parquet-export/internal/cdcevent"
)

func TestFromEvent(t *testing.T) {
	assert := assert.New(t)

	e := &cdcevent.Event{PK: 7, DT: "2024-03-05 10:00:00", Val: null.Float64From(1.5), TS: 1709631600}
	row := FromEvent(e)

	assert.Equal(int64(7), row.ID)
	assert.Equal("2024-03-05 10:00:00", row.DateTime)
	assert.True(row.Value.Valid)
	assert.Equal("1970-01-01 02:00:00", formatTS(0))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	rows := []RowValue{
		{ID: 1, DateTime: "2024-03-05 10:00:00", Value: null.Float64From(1.5), TS: "2024-03-05 12:00:00"},
		{ID: 2, DateTime: "2024-03-05 11:00:00", Value: null.Float64{}, TS: "2024-03-05 13:00:00"},
	}

	data := encode(rows)
	decoded, err := decode(data)
	require.NoError(err)
	require.Len(decoded, 2)

	assert.Equal(rows[0].ID, decoded[0].ID)
	assert.Equal(rows[0].DateTime, decoded[0].DateTime)
	assert.True(decoded[0].Value.Valid)
	assert.Equal(1.5, decoded[0].Value.Float64)
	assert.Equal(rows[0].TS, decoded[0].TS)

	assert.False(decoded[1].Value.Valid)
}

func TestEncodeDecodeEmpty(t *testing.T) {
	require := require.New(t)

	data := encode(nil)
	decoded, err := decode(data)
	require.NoError(err)
	require.Empty(decoded)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	require := require.New(t)

	_, err := decode([]byte("not-a-day-file"))
	require.Error(err)
}

func TestChunkRowGroupsAlwaysHasOneGroup(t *testing.T) {
	assert := assert.New(t)

	groups := chunkRowGroups(nil)
	assert.Len(groups, 1)
	assert.Empty(groups[0])
}

func TestChunkRowGroupsSplitsLargeInput(t *testing.T) {
	assert := assert.New(t)

	rowsPerGroup := targetRowGroupBytes / rowWidthEstimate
	rows := make([]RowValue, rowsPerGroup*2+5)
	for i := range rows {
		rows[i] = RowValue{ID: int64(i), DateTime: "2024-01-01 00:00:00", TS: "2024-01-01 02:00:00"}
	}

	groups := chunkRowGroups(rows)
	assert.Len(groups, 3)
	assert.Len(groups[2], 5)
}
