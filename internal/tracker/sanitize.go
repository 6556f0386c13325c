package tracker

import (
	"math"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// DefaultNoiseProcesses are the agent's own processes, kept out of usage data.
var DefaultNoiseProcesses = []string{"python", "antigravity", "lab_systems_agent"}

// Heartbeat is a sanitized agent report.
type Heartbeat struct {
	HardwareID     string
	SessionStart   *time.Time
	LastActive     *time.Time
	PCName         string
	CPUScore       float64
	RuntimeMinutes int64
	Status         Status
	AppUsage       UsageMap

	City    string
	College string
	LabName string
}

func (h Heartbeat) Location() LocationPatch {
	return LocationPatch{City: h.City, College: h.College, LabName: h.LabName}
}

// OfflineSync is a sanitized retroactive day submission.
type OfflineSync struct {
	SystemID       string
	Date           string
	RuntimeMinutes int64
	CPUScore       float64
	StartTime      *time.Time
	EndTime        *time.Time

	City    string
	College string
	LabName string

	AppUsage UsageMap
}

// Sanitizer coerces untyped payloads. It never fails: bad numbers become 0,
// bad timestamps become absent.
type Sanitizer struct {
	noise []string
}

func NewSanitizer(noise []string) *Sanitizer {
	if noise == nil {
		noise = DefaultNoiseProcesses
	}
	lower := make([]string, 0, len(noise))
	for _, n := range noise {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			lower = append(lower, n)
		}
	}
	return &Sanitizer{noise: lower}
}

var defaultSanitizer = NewSanitizer(nil)

func SanitizeHeartbeat(raw map[string]any) Heartbeat { return defaultSanitizer.Heartbeat(raw) }

func SanitizeOfflineSync(raw map[string]any) OfflineSync { return defaultSanitizer.OfflineSync(raw) }

func (s *Sanitizer) Heartbeat(raw map[string]any) Heartbeat {
	return Heartbeat{
		HardwareID:     str(raw, "hardware_id"),
		SessionStart:   timestamp(raw, "session_start"),
		LastActive:     timestamp(raw, "last_active"),
		PCName:         str(raw, "pc_name"),
		CPUScore:       toFloat(raw["cpu_score"]),
		RuntimeMinutes: toInt(raw["runtime_minutes"]),
		Status:         status(raw["status"]),
		AppUsage:       s.usage(raw["app_usage"]),
		City:           str(raw, "city"),
		College:        str(raw, "college"),
		LabName:        str(raw, "lab_name"),
	}
}

func (s *Sanitizer) OfflineSync(raw map[string]any) OfflineSync {
	return OfflineSync{
		SystemID:       str(raw, "system_id"),
		Date:           str(raw, "date"),
		RuntimeMinutes: toInt(raw["runtime_minutes"]),
		CPUScore:       toFloat(raw["cpu_score"]),
		StartTime:      timestamp(raw, "start_time"),
		EndTime:        timestamp(raw, "end_time"),
		City:           str(raw, "city"),
		College:        str(raw, "college"),
		LabName:        str(raw, "lab_name"),
		AppUsage:       s.usage(raw["app_usage"]),
	}
}

// IsNoise reports whether app is one of the monitoring agent's own processes.
func (s *Sanitizer) IsNoise(app string) bool {
	l := strings.ToLower(app)
	for _, n := range s.noise {
		if strings.Contains(l, n) {
			return true
		}
	}
	return false
}

func (s *Sanitizer) usage(v any) UsageMap {
	out := UsageMap{}
	m, ok := v.(map[string]any)
	if !ok {
		return out
	}
	for app, sec := range m {
		if app == "" || s.IsNoise(app) {
			continue
		}
		out[app] = toInt(sec)
	}
	return out
}

func str(raw map[string]any, key string) string {
	s, _ := raw[key].(string)
	return strings.TrimSpace(s)
}

func status(v any) Status {
	if s, ok := v.(string); ok && strings.EqualFold(strings.TrimSpace(s), string(StatusOffline)) {
		return StatusOffline
	}
	return StatusOnline
}

func toFloat(v any) float64 {
	if s, ok := v.(string); ok {
		v = strings.TrimSpace(s)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	return f
}

// toInt goes through float so "345.4" and 38.0 both truncate.
func toInt(v any) int64 {
	f := toFloat(v)
	if f >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(f)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

func timestamp(raw map[string]any, key string) *time.Time {
	s := str(raw, key)
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return ptr(t.UTC())
		}
	}
	return nil
}
