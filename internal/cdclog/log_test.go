package cdclog

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestSetLevelKnown(t *testing.T) {
	assert := assert.New(t)

	SetLevel("debug")
	assert.Equal(zerolog.DebugLevel, Logger.GetLevel())
}

func TestSetLevelUnknownFallsBackToInfo(t *testing.T) {
	assert := assert.New(t)

	SetLevel("not-a-level")
	assert.Equal(zerolog.InfoLevel, Logger.GetLevel())
}
