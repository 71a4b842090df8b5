package log

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	loggerInstance *zap.Logger
	mu             sync.Mutex
	logFile        string
)

// Configure enables appending log entries to path in addition to stdout.
// It must be called before the first GetInstance to take effect.
func Configure(toFile bool, path string) {
	mu.Lock()
	defer mu.Unlock()

	if toFile {
		logFile = path
	} else {
		logFile = ""
	}
}

// buildConfig returns the structured JSON logger config used in production
func buildConfig(file string) zap.Config {
	config := zap.NewProductionConfig()
	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}
	if file != "" {
		config.OutputPaths = append(config.OutputPaths, file)
		config.ErrorOutputPaths = append(config.ErrorOutputPaths, file)
	}
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")
	config.EncoderConfig.LevelKey = "level"
	config.EncoderConfig.MessageKey = "message"
	config.EncoderConfig.CallerKey = "caller"
	config.EncoderConfig.StacktraceKey = "stacktrace"
	return config
}

func initLogger() {
	logger, err := buildConfig(logFile).Build()
	if err != nil {
		// An unwritable log file must not stop the agent.
		logger, err = buildConfig("").Build()
		if err != nil {
			panic("Failed to initialize logger: " + err.Error())
		}
		logger.Warn("Failed to open log file, logging to stdout only", zap.String("path", logFile))
	}

	loggerInstance = logger
}

func GetInstance() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()

	if loggerInstance == nil {
		initLogger()
	}
	return loggerInstance
}
