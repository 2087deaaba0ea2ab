package logger

import (
	"context"
	"fmt"
	"os"
	"time"

	"parish-media/internal/config"
	"parish-media/internal/database"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap/zapcore"
)

// LogEntry holds the data passed from Zap to the worker
type LogEntry struct {
	Level   zapcore.Level
	Message string
	Caller  string
	Fields  map[string]any
	Time    time.Time
}

// LogRecord is the document stored in the logs collection. Cleanup and processing
// failures land here with their asset_id/path fields for offline reconciliation.
type LogRecord struct {
	AppId        string         `bson:"app_id"`
	Level        string         `bson:"level"`
	LogLevelId   int            `bson:"log_level_id"`
	Message      string         `bson:"message"`
	Caller       string         `bson:"caller,omitempty"`
	Fields       map[string]any `bson:"fields,omitempty"`
	CreatedOnUtc time.Time      `bson:"created_on_utc"`
}

// DBLogWriter handles the async writing
type DBLogWriter struct {
	coll    *mongo.Collection
	logChan chan LogEntry
	appId   string
}

func NewDBLogWriter(mongodb *database.MongodbDB, cfg *config.Config) *DBLogWriter {
	writer := &DBLogWriter{
		coll:    mongodb.DB.Collection("logs"),
		logChan: make(chan LogEntry, 1000),
		appId:   cfg.AppId,
	}

	go writer.processLogs()

	return writer
}

// AddLog never blocks the caller; a full buffer drops the entry.
func (w *DBLogWriter) AddLog(entry LogEntry) {
	select {
	case w.logChan <- entry:
	default:
		fmt.Fprintln(os.Stderr, "DB log channel full, dropping log:", entry.Message)
	}
}

func (w *DBLogWriter) processLogs() {
	for entry := range w.logChan {
		record := LogRecord{
			AppId:        w.appId,
			Level:        entry.Level.String(),
			LogLevelId:   mapLevelToInt(entry.Level),
			Message:      entry.Message,
			Caller:       entry.Caller,
			Fields:       entry.Fields,
			CreatedOnUtc: entry.Time.UTC(),
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		// Insert errors are ignored to keep the app running
		w.coll.InsertOne(ctx, record)
		cancel()
	}
}

func mapLevelToInt(l zapcore.Level) int {
	switch l {
	case zapcore.DebugLevel:
		return 10
	case zapcore.InfoLevel:
		return 20
	case zapcore.WarnLevel:
		return 30
	case zapcore.ErrorLevel:
		return 40
	case zapcore.FatalLevel:
		return 50
	default:
		return 20
	}
}
