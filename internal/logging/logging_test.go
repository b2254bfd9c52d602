package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestSetup_Level(t *testing.T) {
	require.Equal(t, logrus.DebugLevel, Setup("debug", "").GetLevel())
	require.Equal(t, logrus.WarnLevel, Setup(" WARN ", "").GetLevel())
	require.Equal(t, logrus.InfoLevel, Setup("chatty", "").GetLevel())
	require.Equal(t, logrus.InfoLevel, Setup("", "").GetLevel())
}

func TestSetup_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "provisioner.log")

	log := Setup("info", path)
	log.WithField("batch_id", "abcd1234").Info("Processing batch")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "Processing batch")
	require.Contains(t, string(data), "batch_id=abcd1234")
}
