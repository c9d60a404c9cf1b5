package logger

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mileusna/useragent"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/capifyhq/capify/utils"
)

// EventLogger appends one human-readable line per relay lifecycle point to a
// rotating text file. The line format is fixed because the log-view endpoint
// re-parses the file; see handlers/logs_handler.go. Logging is best-effort
// and must never fail the calling operation.
type EventLogger struct {
	mu  sync.Mutex
	out *lumberjack.Logger
}

func NewEventLogger(path string) *EventLogger {
	return &EventLogger{
		out: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
		},
	}
}

func (l *EventLogger) Close() error {
	if l == nil || l.out == nil {
		return nil
	}
	return l.out.Close()
}

func (l *EventLogger) write(level, format string, args ...interface{}) {
	if l == nil || l.out == nil {
		return
	}
	line := fmt.Sprintf("%s - %s - %s\n",
		time.Now().UTC().Format("2006-01-02 15:04:05"),
		level,
		fmt.Sprintf(format, args...),
	)
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.out.Write([]byte(line)); err != nil {
		log.Println("event log write failed:", err)
	}
}

func compactJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// MaskToken shortens an access token to a prefix/suffix pair for log lines.
func MaskToken(token string) string {
	if len(token) > 20 {
		return token[:10] + "..." + token[len(token)-10:]
	}
	return "***"
}

func (l *EventLogger) EventReceived(eventName, containerID string, data interface{}, clientUA string) {
	ua := useragent.Parse(clientUA)
	l.write("INFO", "GTM Event Received: %s | Container: %s | Device: %s | Data: %s",
		eventName, containerID, utils.GetDeviceType(&ua), compactJSON(data))
}

func (l *EventLogger) MetaRequestSent(eventName, containerID, pixelID, accessToken string, payload interface{}) {
	l.write("INFO", "Meta Request Sent: %s | Container: %s | Pixel: %s | Token: %s | Payload: %s",
		eventName, containerID, pixelID, MaskToken(accessToken), compactJSON(payload))
}

func (l *EventLogger) MetaResponseReceived(eventName, containerID string, response interface{}, success bool, errMsg string) {
	if success {
		l.write("INFO", "Meta Response Success: %s | Container: %s | Response: %s",
			eventName, containerID, compactJSON(response))
		return
	}
	l.write("ERROR", "Meta Response Error: %s | Container: %s | Error: %s",
		eventName, containerID, errMsg)
}

func (l *EventLogger) EventComplete(eventName, containerID string, duration time.Duration, success bool) {
	status := "SUCCESS"
	if !success {
		status = "FAILED"
	}
	l.write("INFO", "GTM Event Complete: %s | Container: %s | Status: %s | Duration: %dms",
		eventName, containerID, status, duration.Milliseconds())
}

func (l *EventLogger) TokenInfoRequest(containerID, sourceIP string, success bool, errMsg string) {
	if success {
		l.write("INFO", "Token Info Request: %s | IP: %s", containerID, sourceIP)
		return
	}
	l.write("WARNING", "Token Info Request Failed: %s | Error: %s", containerID, errMsg)
}

func (l *EventLogger) ScriptGenerated(tokenID int, containerID string, userID int) {
	l.write("INFO", "GTM Script Generated: Token %d | Container: %s | User: %d",
		tokenID, containerID, userID)
}
