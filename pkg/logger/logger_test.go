package logx

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"

	"github.com/ragbot-core-v1/server/internal/core"
)

func TestInitTestingRaisesLevelToWarn(t *testing.T) {
	Init(LoggerOpts{Environment: core.Testing})
	assert.Equal(t, zerolog.WarnLevel, log.Logger.GetLevel())
}

func TestInitProductionLogsAtInfo(t *testing.T) {
	Init(LoggerOpts{Environment: core.Production})
	assert.Equal(t, zerolog.InfoLevel, log.Logger.GetLevel())
}

func TestInitDefaultsToVerboseDevelopment(t *testing.T) {
	Init()
	assert.Equal(t, zerolog.DebugLevel, log.Logger.GetLevel())
}
