package cdcreader

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barshanhassan/enexory-parquet-export/internal/cdcerr"
	"github.com/barshanhassan/enexory-parquet-export/internal/cdcevent"
)

var tbl = Table{Database: "shop", Table: "orders"}

func collect(t *testing.T, input string) []*cdcevent.Event {
	t.Helper()
	var got []*cdcevent.Event
	err := Run(strings.NewReader(input), tbl, func(e *cdcevent.Event) error {
		got = append(got, e)
		return nil
	})
	require.NoError(t, err)
	return got
}

func TestRunParsesInsertUpdateDelete(t *testing.T) {
	assert := assert.New(t)

	input := "" +
		"INSERT INTO `shop`.`orders`\n" +
		"SET\n" +
		"  @1=1\n" +
		"  @3='2024-03-05 10:00:00'\n" +
		"  @4=12.5\n" +
		"  @6=1709631600\n" +
		"UPDATE `shop`.`orders`\n" +
		"WHERE\n" +
		"  @1=1\n" +
		"  @3='2024-03-05 10:00:00'\n" +
		"  @4=13.0\n" +
		"  @6=1709631700\n" +
		"SET\n" +
		"  @1=1\n" +
		"  @3='2024-03-05 11:00:00'\n" +
		"  @4=13.5\n" +
		"  @6=1709631800\n" +
		"DELETE FROM `shop`.`orders`\n" +
		"WHERE\n" +
		"  @1=2\n" +
		"  @3='2024-03-05 12:00:00'\n"

	events := collect(t, input)
	require.Len(t, events, 3)

	assert.Equal(cdcevent.Insert, events[0].Kind)
	assert.Equal(int64(1), events[0].PK)
	assert.Equal("2024-03-05 10:00:00", events[0].DT)
	assert.True(events[0].Val.Valid)
	assert.Equal(12.5, events[0].Val.Float64)
	assert.Equal(uint64(1709631600), events[0].TS)

	assert.Equal(cdcevent.Update, events[1].Kind)
	assert.Equal(int64(1), events[1].PK)
	assert.Equal("2024-03-05 11:00:00", events[1].DT)

	assert.Equal(cdcevent.Delete, events[2].Kind)
	assert.Equal(int64(2), events[2].PK)
}

func TestRunIgnoresOtherTables(t *testing.T) {
	input := "" +
		"INSERT INTO `shop`.`customers`\n" +
		"SET\n" +
		"  @1=1\n" +
		"  @3='2024-03-05 10:00:00'\n" +
		"  @4=1.0\n" +
		"  @6=1709631600\n"

	events := collect(t, input)
	assert.Empty(t, events)
}

func TestRunHandlesNullValue(t *testing.T) {
	assert := assert.New(t)

	input := "" +
		"INSERT INTO `shop`.`orders`\n" +
		"SET\n" +
		"  @1=1\n" +
		"  @3='2024-03-05 10:00:00'\n" +
		"  @4=NULL\n" +
		"  @6=1709631600\n"

	events := collect(t, input)
	require.Len(t, events, 1)
	assert.False(events[0].Val.Valid)
}

func TestRunFatalOnMissingPK(t *testing.T) {
	input := "" +
		"INSERT INTO `shop`.`orders`\n" +
		"SET\n" +
		"  @3='2024-03-05 10:00:00'\n" +
		"  @4=1.0\n" +
		"  @6=1709631600\n"

	err := Run(strings.NewReader(input), tbl, func(e *cdcevent.Event) error { return nil })
	require.Error(t, err)

	var cerr *cdcerr.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, cdcerr.ParseErr, cerr.Code)
}

func TestRunFatalOnNonNumericPK(t *testing.T) {
	input := "" +
		"INSERT INTO `shop`.`orders`\n" +
		"SET\n" +
		"  @1=abc\n" +
		"  @3='2024-03-05 10:00:00'\n" +
		"  @4=1.0\n" +
		"  @6=1709631600\n"

	err := Run(strings.NewReader(input), tbl, func(e *cdcevent.Event) error { return nil })
	require.Error(t, err)
}

func TestRunFatalOnMissingTS(t *testing.T) {
	input := "" +
		"INSERT INTO `shop`.`orders`\n" +
		"SET\n" +
		"  @1=1\n" +
		"  @3='2024-03-05 10:00:00'\n" +
		"  @4=1.0\n"

	err := Run(strings.NewReader(input), tbl, func(e *cdcevent.Event) error { return nil })
	require.Error(t, err)
}

func TestRunDeleteDoesNotRequireTsOrVal(t *testing.T) {
	input := "" +
		"DELETE FROM `shop`.`orders`\n" +
		"WHERE\n" +
		"  @1=9\n" +
		"  @3='2024-03-05 10:00:00'\n"

	events := collect(t, input)
	require.Len(t, events, 1)
	assert.Equal(t, int64(9), events[0].PK)
}

func TestRunPropagatesHandlerError(t *testing.T) {
	input := "" +
		"INSERT INTO `shop`.`orders`\n" +
		"SET\n" +
		"  @1=1\n" +
		"  @3='2024-03-05 10:00:00'\n" +
		"  @4=1.0\n" +
		"  @6=1709631600\n"

	boom := assert.AnError
	err := Run(strings.NewReader(input), tbl, func(e *cdcevent.Event) error { return boom })
	assert.Equal(t, boom, err)
}
