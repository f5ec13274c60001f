package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEarlyLog_Errorf(t *testing.T) {
	var buf bytes.Buffer
	NewEarlyLog(&buf, "otp-relay").Errorf("failed to load config: %v", "missing file")

	line := buf.String()
	assert.True(t, strings.HasSuffix(line, "\n"))
	assert.Contains(t, line, "\tERROR\totp-relay\tfailed to load config: missing file")
}
