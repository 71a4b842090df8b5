package log

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildConfig_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "info.log")

	cfg := buildConfig(path)
	assert.Equal(t, []string{"stdout", path}, cfg.OutputPaths)
	assert.Equal(t, []string{"stderr", path}, cfg.ErrorOutputPaths)
	assert.Equal(t, "timestamp", cfg.EncoderConfig.TimeKey)
	assert.Equal(t, "message", cfg.EncoderConfig.MessageKey)
}

func TestBuildConfig_StdoutOnly(t *testing.T) {
	cfg := buildConfig("")
	assert.Equal(t, []string{"stdout"}, cfg.OutputPaths)
}

func TestGetInstance_Singleton(t *testing.T) {
	first := GetInstance()
	second := GetInstance()
	assert.Same(t, first, second)
}
