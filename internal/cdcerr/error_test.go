package cdcerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCode(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(1, ParseErr.ExitCode())
	assert.Equal(1, IOErr.ExitCode())
	assert.Equal(2, UsageErr.ExitCode())
}

func TestErrorfAndUnwrap(t *testing.T) {
	assert := assert.New(t)

	cause := errors.New("boom")
	err := Errorf(ParseErr, cause, "line %d bad", 7)

	assert.Equal(ParseErr, err.Code)
	assert.Contains(err.Error(), "line 7 bad")
	assert.Contains(err.Error(), "boom")
	assert.Equal(cause, err.Unwrap())

	var target *Error
	assert.True(errors.As(err, &target))
	assert.Same(err, target)
}

func TestErrorfWithoutCause(t *testing.T) {
	assert := assert.New(t)

	err := Errorf(UsageErr, nil, "missing flag")
	assert.NotContains(err.Error(), "<nil>")
	assert.Nil(err.Unwrap())
}
