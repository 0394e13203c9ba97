package analytics

import (
	"os"

	"github.com/mohitkumar/autoflow/audit"
	"github.com/mohitkumar/autoflow/model"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var _ audit.Collector = new(LogFileDataCollector)

// LogFileDataCollector appends every audit entry as one JSON line.
type LogFileDataCollector struct {
	fileName string
	logger   *zap.Logger
}

func NewLogFileDataCollector(fileName string) (*LogFileDataCollector, error) {
	enccoderConfig := zap.NewProductionEncoderConfig()
	enccoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	enccoderConfig.StacktraceKey = ""
	enccoderConfig.CallerKey = ""
	fileEncoder := zapcore.NewJSONEncoder(enccoderConfig)
	logFile, err := os.OpenFile(fileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	writer := zapcore.AddSync(logFile)
	core := zapcore.NewCore(fileEncoder, writer, zapcore.InfoLevel)
	return &LogFileDataCollector{
		fileName: fileName,
		logger:   zap.New(core),
	}, nil
}

func (lc *LogFileDataCollector) Collect(entry model.AuditEntry) {
	fields := []zap.Field{
		zap.String("id", entry.Id),
		zap.Time("at", entry.Time),
		zap.String("flowId", entry.FlowId),
	}
	if entry.ExecutionId != "" {
		fields = append(fields, zap.String("executionId", entry.ExecutionId))
	}
	if entry.NodeId != "" {
		fields = append(fields, zap.String("nodeId", entry.NodeId))
	}
	if entry.Subject != "" {
		fields = append(fields, zap.String("subject", entry.Subject))
	}
	if entry.EventRef != "" {
		fields = append(fields, zap.String("eventRef", entry.EventRef))
	}
	if entry.Attempt > 0 {
		fields = append(fields, zap.Int("attempt", entry.Attempt))
	}
	if entry.Status != "" {
		fields = append(fields, zap.String("status", entry.Status))
	}
	if entry.Error != "" {
		fields = append(fields, zap.String("reason", entry.Error))
	}
	if len(entry.Data) > 0 {
		fields = append(fields, zap.Any("data", entry.Data))
	}
	lc.logger.Info(string(entry.Type), fields...)
}

func (lc *LogFileDataCollector) Close() error {
	return lc.logger.Sync()
}
