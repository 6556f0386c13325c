package models

import (
	"encoding/json"
	"net/http"
)

// ServerTimeLayout: формат server_time в ответах (UTC, микросекунды).
const ServerTimeLayout = "2006-01-02T15:04:05.000000Z"

// WriteJSON пишет v как JSON с кодом code.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError пишет {"error": msg}; агенты разбирают именно это поле.
func WriteError(w http.ResponseWriter, code int, msg string) {
	WriteJSON(w, code, map[string]string{"error": msg})
}

// All возвращает модели в порядке миграции.
func All() []any {
	return []any{
		&Device{},
		&DeviceSession{},
		&DeviceDailyHistory{},
		&AppUsageLog{},
	}
}
