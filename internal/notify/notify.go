package notify

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/reachravi55/myDailyRoutine/internal/alarm"
)

// LogNotifier writes each reminder as a structured log line.
type LogNotifier struct {
	Logger *log.Logger
}

func NewLogNotifier(logger *log.Logger) *LogNotifier {
	if logger == nil {
		logger = log.Default()
	}
	return &LogNotifier{Logger: logger}
}

func (n *LogNotifier) Show(title, body string) {
	logJSON(n.Logger, map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"level": "info",
		"msg":   "notification",
		"title": title,
		"body":  body,
	})
}

// Multi fans a reminder out to every notifier, in parallel, and waits for all of them.
type Multi []alarm.Notifier

func (m Multi) Show(title, body string) {
	var wg sync.WaitGroup
	for _, n := range m {
		if n == nil {
			continue
		}
		wg.Add(1)
		go func(n alarm.Notifier) {
			defer wg.Done()
			n.Show(title, body)
		}(n)
	}
	wg.Wait()
}

func logJSON(logger *log.Logger, payload map[string]any) {
	if logger == nil {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		logger.Printf(`{"level":"error","msg":"log_marshal_failed","error":%q}`, err.Error())
		return
	}
	logger.Print(string(b))
}
