// Package tracker keeps device presence, sessions and daily summaries
// consistent under a stream of noisy agent heartbeats.
package tracker

import (
	"errors"
	"time"
)

type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// DateLayout is the UTC calendar-day key used by history and usage logs.
const DateLayout = "2006-01-02"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyBound  = errors.New("system id already bound")
	ErrHardwareInUse = errors.New("hardware id already bound to another system")
	ErrAlreadyExists = errors.New("system id already exists")
	ErrInvalidInput  = errors.New("invalid input")
)

// UsageMap maps an application name to seconds of use.
type UsageMap map[string]int64

func (u UsageMap) Clone() UsageMap {
	out := make(UsageMap, len(u))
	for k, v := range u {
		out[k] = v
	}
	return out
}

// Device is a provisioned slot. HardwareID is empty while unbound.
type Device struct {
	SystemID   string
	HardwareID string

	City    string
	Tehsil  string
	College string
	LabName string
	PCName  string

	Status          Status
	LastSeen        *time.Time
	TodayStartTime  *time.Time
	TodayLastActive *time.Time
	RuntimeMinutes  int64
	CPUScore        float64
	AppUsage        UsageMap
}

func (d Device) Bound() bool { return d.HardwareID != "" }

// OnlineAt reports whether d counts as online at now given the staleness threshold.
func (d Device) OnlineAt(now time.Time, threshold time.Duration) bool {
	return d.Status == StatusOnline && d.LastSeen != nil && d.LastSeen.After(now.Add(-threshold))
}

type Session struct {
	ID              uint64
	DeviceID        string
	StartTime       time.Time
	EndTime         *time.Time
	DurationSeconds *int64

	City     string
	College  string
	LabName  string
	AvgScore float64
}

// DailySummary is one archived (device, day) row.
type DailySummary struct {
	DeviceID       string
	Date           string
	AvgScore       float64
	RuntimeMinutes int64
	StartTime      *time.Time
	EndTime        *time.Time

	City    string
	College string
	LabName string

	AppUsage UsageMap

	// RolledOver is set once the heartbeat rollover has archived this day.
	RolledOver bool
}

type UsageLogEntry struct {
	DeviceID     string
	Date         string
	AppName      string
	SecondsAdded int64
}

// LocationPatch carries optional location updates. Empty fields are left alone.
type LocationPatch struct {
	City    string
	College string
	LabName string
	PCName  string
}

func (p LocationPatch) Empty() bool {
	return p.City == "" && p.College == "" && p.LabName == "" && p.PCName == ""
}

// Apply copies the non-empty fields of p onto d.
func (p LocationPatch) Apply(d *Device) {
	if p.City != "" {
		d.City = p.City
	}
	if p.College != "" {
		d.College = p.College
	}
	if p.LabName != "" {
		d.LabName = p.LabName
	}
	if p.PCName != "" {
		d.PCName = p.PCName
	}
}

// DeviceFilter narrows ListDevices. Search matches pc_name case-insensitively.
type DeviceFilter struct {
	City   string
	Search string
}

func dayOf(t time.Time) string { return t.UTC().Format(DateLayout) }

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }
