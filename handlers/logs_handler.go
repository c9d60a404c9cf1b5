package handlers

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/capifyhq/capify/utils"
)

// LogEntry is a parsed line from the GTM event log. Which fields are set
// depends on the lifecycle marker the line carries.
type LogEntry struct {
	Timestamp   string                 `json:"timestamp"`
	Level       string                 `json:"level"`
	RawMessage  string                 `json:"raw_message"`
	Event       string                 `json:"event,omitempty"`
	Status      string                 `json:"status,omitempty"`
	Container   string                 `json:"container,omitempty"`
	PixelID     string                 `json:"pixel_id,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
	DataRaw     string                 `json:"data_raw,omitempty"`
	Response    map[string]interface{} `json:"response,omitempty"`
	ResponseRaw string                 `json:"response_raw,omitempty"`
	Error       string                 `json:"error,omitempty"`
	FinalStatus string                 `json:"final_status,omitempty"`
	Duration    int                    `json:"duration,omitempty"`
}

var (
	eventReceivedRe    = regexp.MustCompile(`GTM Event Received: (\w+)`)
	metaRequestRe      = regexp.MustCompile(`Meta Request Sent: (\w+)`)
	metaSuccessRe      = regexp.MustCompile(`Meta Response Success: (\w+)`)
	metaErrorRe        = regexp.MustCompile(`Meta Response Error: (\w+)`)
	eventCompleteRe    = regexp.MustCompile(`GTM Event Complete: (\w+)`)
	tokenInfoFailedRe  = regexp.MustCompile(`Token Info Request Failed: (GTM-[A-Z0-9]+)`)
	containerRe        = regexp.MustCompile(`Container: (GTM-[A-Z0-9]+)`)
	pixelRe            = regexp.MustCompile(`Pixel: (\d+)`)
	logDataRe          = regexp.MustCompile(`(?s)Data: (\{.*\})`)
	logResponseRe      = regexp.MustCompile(`(?s)Response: (\{.*\})`)
	logErrorRe         = regexp.MustCompile(`Error: (.+)$`)
	completeStatusRe   = regexp.MustCompile(`Status: (\w+)`)
	completeDurationRe = regexp.MustCompile(`Duration: (\d+)ms`)
)

// ParseLogLine turns one event log line back into a structured entry. The
// line format is "<timestamp> - <level> - <message>". Lines that do not
// follow it are skipped.
func ParseLogLine(line string) (LogEntry, bool) {
	parts := strings.SplitN(strings.TrimSpace(line), " - ", 3)
	if len(parts) < 3 {
		return LogEntry{}, false
	}

	entry := LogEntry{
		Timestamp:  parts[0],
		Level:      parts[1],
		RawMessage: parts[2],
	}
	message := parts[2]

	switch {
	case strings.Contains(message, "GTM Event Received:"):
		entry.Status = "RECEIVED"
		if m := eventReceivedRe.FindStringSubmatch(message); m != nil {
			entry.Event = m[1]
		}
		if m := containerRe.FindStringSubmatch(message); m != nil {
			entry.Container = m[1]
		}
		if m := logDataRe.FindStringSubmatch(message); m != nil {
			var data map[string]interface{}
			if err := json.Unmarshal([]byte(m[1]), &data); err == nil {
				entry.Data = data
			} else {
				entry.DataRaw = m[1]
			}
		}

	case strings.Contains(message, "Meta Request Sent:"):
		entry.Status = "SENT"
		if m := metaRequestRe.FindStringSubmatch(message); m != nil {
			entry.Event = m[1]
		}
		if m := containerRe.FindStringSubmatch(message); m != nil {
			entry.Container = m[1]
		}
		if m := pixelRe.FindStringSubmatch(message); m != nil {
			entry.PixelID = m[1]
		}

	case strings.Contains(message, "Meta Response Success:"):
		entry.Status = "SUCCESS"
		if m := metaSuccessRe.FindStringSubmatch(message); m != nil {
			entry.Event = m[1]
		}
		if m := containerRe.FindStringSubmatch(message); m != nil {
			entry.Container = m[1]
		}
		if m := logResponseRe.FindStringSubmatch(message); m != nil {
			var response map[string]interface{}
			if err := json.Unmarshal([]byte(m[1]), &response); err == nil {
				entry.Response = response
			} else {
				entry.ResponseRaw = m[1]
			}
		}

	case strings.Contains(message, "Meta Response Error:"):
		entry.Status = "ERROR"
		if m := metaErrorRe.FindStringSubmatch(message); m != nil {
			entry.Event = m[1]
		}
		if m := containerRe.FindStringSubmatch(message); m != nil {
			entry.Container = m[1]
		}
		if m := logErrorRe.FindStringSubmatch(message); m != nil {
			entry.Error = m[1]
		}

	case strings.Contains(message, "GTM Event Complete:"):
		entry.Status = "COMPLETE"
		if m := eventCompleteRe.FindStringSubmatch(message); m != nil {
			entry.Event = m[1]
		}
		if m := containerRe.FindStringSubmatch(message); m != nil {
			entry.Container = m[1]
		}
		if m := completeStatusRe.FindStringSubmatch(message); m != nil {
			entry.FinalStatus = m[1]
		}
		if m := completeDurationRe.FindStringSubmatch(message); m != nil {
			if duration, err := strconv.Atoi(m[1]); err == nil {
				entry.Duration = duration
			}
		}

	case strings.Contains(message, "Token Info Request Failed:"):
		entry.Status = "TOKEN_ERROR"
		if m := tokenInfoFailedRe.FindStringSubmatch(message); m != nil {
			entry.Container = m[1]
		}
		if m := logErrorRe.FindStringSubmatch(message); m != nil {
			entry.Error = m[1]
		}
	}

	return entry, true
}

func readLogEntries(logPath string) ([]LogEntry, error) {
	file, err := os.Open(logPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	entries := make([]LogEntry, 0)
	scanner := bufio.NewScanner(file)
	// Data payload lines can exceed the default 64KB token size.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if entry, ok := ParseLogLine(line); ok {
			entries = append(entries, entry)
		}
	}
	return entries, scanner.Err()
}

// GetEventLogs returns parsed event log entries, newest first. Supports
// limit, level, event and container query filters.
func GetEventLogs(logPath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 100
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				limit = parsed
			}
		}
		levelFilter := r.URL.Query().Get("level")
		eventFilter := r.URL.Query().Get("event")
		containerFilter := r.URL.Query().Get("container")

		entries, err := readLogEntries(logPath)
		if os.IsNotExist(err) {
			utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
				"logs": []LogEntry{}, "total": 0, "message": "No log file found",
			})
			return
		} else if err != nil {
			utils.WriteErrorResponse(w, http.StatusInternalServerError, err)
			return
		}

		filtered := make([]LogEntry, 0, len(entries))
		for _, entry := range entries {
			if levelFilter != "" && !strings.EqualFold(entry.Level, levelFilter) {
				continue
			}
			if eventFilter != "" && !strings.EqualFold(entry.Event, eventFilter) {
				continue
			}
			if containerFilter != "" && !strings.EqualFold(entry.Container, containerFilter) {
				continue
			}
			filtered = append(filtered, entry)
		}

		sort.SliceStable(filtered, func(i, j int) bool {
			return filtered[i].Timestamp > filtered[j].Timestamp
		})
		if len(filtered) > limit {
			filtered = filtered[:limit]
		}

		utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"logs":    filtered,
			"total":   len(filtered),
			"message": fmt.Sprintf("Retrieved %d log entries", len(filtered)),
		})
	}
}

func DownloadEventLogs(logPath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := os.Stat(logPath); os.IsNotExist(err) {
			utils.WriteErrorResponse(w, http.StatusNotFound, errors.New("log file not found"))
			return
		}

		filename := fmt.Sprintf("gtm_events_%s.log", time.Now().Format("20060102_150405"))
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		http.ServeFile(w, r, logPath)
	}
}

func ClearEventLogs(logPath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := os.Truncate(logPath, 0); err != nil && !os.IsNotExist(err) {
			utils.WriteErrorResponse(w, http.StatusInternalServerError, err)
			return
		}

		utils.WriteJSON(w, http.StatusOK, map[string]string{"message": "Logs cleared successfully"})
	}
}

// GetEventLogStats aggregates log counts by level and event type and
// returns the ten most recent entries.
func GetEventLogStats(logPath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := readLogEntries(logPath)
		if os.IsNotExist(err) {
			utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
				"total_events": 0, "success_count": 0, "error_count": 0,
				"warning_count": 0, "info_count": 0,
				"events_by_type": map[string]int{}, "recent_activity": []interface{}{},
			})
			return
		} else if err != nil {
			utils.WriteErrorResponse(w, http.StatusInternalServerError, err)
			return
		}

		var successCount, errorCount, warningCount, infoCount int
		eventsByType := make(map[string]int)
		recentActivity := make([]map[string]interface{}, 0, 10)

		for _, entry := range entries {
			switch entry.Level {
			case "SUCCESS":
				successCount++
			case "ERROR":
				errorCount++
			case "WARNING":
				warningCount++
			default:
				infoCount++
			}

			if entry.Event != "" {
				eventsByType[entry.Event]++
			}

			if len(recentActivity) < 10 {
				message := entry.RawMessage
				if len(message) > 100 {
					message = message[:100] + "..."
				}
				recentActivity = append(recentActivity, map[string]interface{}{
					"timestamp":  entry.Timestamp,
					"event_name": entry.Event,
					"level":      entry.Level,
					"message":    message,
				})
			}
		}

		utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"total_events":    len(entries),
			"success_count":   successCount,
			"error_count":     errorCount,
			"warning_count":   warningCount,
			"info_count":      infoCount,
			"events_by_type":  eventsByType,
			"recent_activity": recentActivity,
		})
	}
}
