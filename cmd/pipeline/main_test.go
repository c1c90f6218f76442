package main

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/assert"
)

func TestReportLoadError_ValidationError(t *testing.T) {
	var buf bytes.Buffer

	reportLoadError(&buf, errors.New("POST_DELAY cannot be negative"))

	assert.Equal(t, "POST_DELAY cannot be negative\n", buf.String())
}

func TestReportLoadError_SkipsFlagsError(t *testing.T) {
	var buf bytes.Buffer
	err := fmt.Errorf("failed to parse configuration: %w", &flags.Error{Type: flags.ErrUnknownFlag, Message: "unknown flag `bogus'"})

	reportLoadError(&buf, err)

	assert.Empty(t, buf.String())
}
