package helpers

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_Levels(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, NewLogger("svc", "development", "").GetLevel())
	assert.Equal(t, logrus.InfoLevel, NewLogger("svc", "production", "").GetLevel())
	assert.Equal(t, logrus.WarnLevel, NewLogger("svc", "production", "warn").GetLevel())
	assert.Equal(t, logrus.InfoLevel, NewLogger("svc", "production", "loud").GetLevel())
}

func TestNewLogger_StampsIdentity(t *testing.T) {
	l := NewLogger("svc", "production", "")
	var buf bytes.Buffer
	l.SetOutput(&buf)

	l.WithField("env", "override").Info("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "svc", line["app"])
	assert.Equal(t, "override", line["env"], "caller fields win")
	assert.Equal(t, "hello", line["msg"])
}
