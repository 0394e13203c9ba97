package analytics

import (
	"fmt"

	"github.com/mohitkumar/autoflow/audit"
)

type DataCollectorConfig struct {
	FileName      string
	CollectorType DataCollectorType
}

type DataCollectorType string

const LOG_FILE_DATA_COLLECTOR DataCollectorType = "LOG_FILE_DATA_COLLECTOR"

// NewDataCollector builds the audit collector named by the config.
func NewDataCollector(config DataCollectorConfig) (audit.Collector, error) {
	switch config.CollectorType {
	case LOG_FILE_DATA_COLLECTOR:
		return NewLogFileDataCollector(config.FileName)
	}
	return nil, fmt.Errorf("unknown data collector %s", config.CollectorType)
}
