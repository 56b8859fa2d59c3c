package alert

import (
	"go.uber.org/zap"
)

// LogChannel 把告警写进结构化日志（默认通道）
type LogChannel struct {
	Log *zap.Logger
}

func (c *LogChannel) Name() string { return "log" }

func (c *LogChannel) Send(a Alert) error {
	if c.Log == nil {
		return nil
	}
	fields := make([]zap.Field, 0, len(a.Fields)+1)
	fields = append(fields, zap.String("level", a.Level))
	for k, v := range a.Fields {
		fields = append(fields, zap.Any(k, v))
	}
	switch a.Level {
	case "CRITICAL", "ERROR":
		c.Log.Error(a.Message, fields...)
	case "WARNING":
		c.Log.Warn(a.Message, fields...)
	default:
		c.Log.Info(a.Message, fields...)
	}
	return nil
}
