package logger

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorf_IsTagged(t *testing.T) {
	cause := errors.New("no such file")
	err := New("check-config").Errorf("read config: %w", cause)

	assert.Equal(t, "read config: no such file", err.Error())
	assert.Equal(t, "check-config", ErrorTag(err))
	assert.ErrorIs(t, err, cause)
}

func TestErrorTag_ThroughWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", WithTag("run", errors.New("inner")))
	assert.Equal(t, "run", ErrorTag(err))
	assert.Equal(t, "", ErrorTag(errors.New("untagged")))
	assert.Nil(t, WithTag("run", nil))
}

func TestConsole_Problems(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)

	c.Problems("Validation errors", []Located{
		{Path: "queries[0].connection_id", Line: 12, Message: "connection 'missing' is not declared"},
		{Message: "document is empty"},
	})

	expected := "✗ Validation errors (2)\n" +
		"  1. queries[0].connection_id (line 12): connection 'missing' is not declared\n" +
		"  2. document is empty\n"
	assert.Equal(t, expected, buf.String())
}

func TestConsole_ProblemsEmptyPrintsNothing(t *testing.T) {
	var buf bytes.Buffer
	NewConsole(&buf).Problems("Validation errors", nil)
	assert.Empty(t, buf.String())
}

func TestConsole_Table(t *testing.T) {
	var buf bytes.Buffer
	NewConsole(&buf).Table([]string{"QUERY", "STATUS"}, [][]string{{"q1", "succeeded"}, {"long_query", "failed"}})

	assert.Equal(t, "QUERY       STATUS\nq1          succeeded\nlong_query  failed\n", buf.String())
}
