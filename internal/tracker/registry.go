package tracker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Authenticate looks up the slot bound to hardwareID. Supplied location
// fields are written to that slot first. found is false for unknown hardware.
func (s *Service) Authenticate(ctx context.Context, hardwareID string, loc LocationPatch) (dev Device, found bool, err error) {
	if hardwareID == "" {
		return Device{}, false, fmt.Errorf("%w: missing hardware_id", ErrInvalidInput)
	}
	dev, err = s.store.FindDeviceByHardwareID(ctx, hardwareID)
	if errors.Is(err, ErrNotFound) {
		return Device{}, false, nil
	}
	if err != nil {
		return Device{}, false, err
	}
	if loc.Empty() {
		return dev, true, nil
	}

	unlock := s.locks.Lock(dev.SystemID)
	defer unlock()
	if err := s.store.UpdateLocation(ctx, dev.SystemID, loc); err != nil {
		return Device{}, false, err
	}
	dev, err = s.store.GetDevice(ctx, dev.SystemID)
	if err != nil {
		return Device{}, false, err
	}
	return dev, true, nil
}

// Bind attaches hardwareID to an unbound slot and returns the slot with its
// pre-provisioned location.
func (s *Service) Bind(ctx context.Context, hardwareID, systemID string) (Device, error) {
	if hardwareID == "" || systemID == "" {
		return Device{}, fmt.Errorf("%w: missing hardware_id or system_id", ErrInvalidInput)
	}

	unlock := s.locks.Lock(systemID)
	defer unlock()

	dev, err := s.store.GetDevice(ctx, systemID)
	if err != nil {
		return Device{}, err
	}
	if dev.Bound() {
		return Device{}, ErrAlreadyBound
	}
	other, err := s.store.FindDeviceByHardwareID(ctx, hardwareID)
	switch {
	case err == nil:
		return Device{}, fmt.Errorf("%w: %s", ErrHardwareInUse, other.SystemID)
	case !errors.Is(err, ErrNotFound):
		return Device{}, err
	}

	if err := s.store.BindHardware(ctx, systemID, hardwareID); err != nil {
		return Device{}, err
	}
	dev.HardwareID = hardwareID
	s.log.WithFields(logrus.Fields{"system_id": systemID, "hardware_id": hardwareID}).Info("bound machine")
	return dev, nil
}

// Unbind releases a slot: its open session is closed, hardware_id cleared and
// status set offline. History stays.
func (s *Service) Unbind(ctx context.Context, systemID string) error {
	if systemID == "" {
		return fmt.Errorf("%w: missing system_id", ErrInvalidInput)
	}

	unlock := s.locks.Lock(systemID)
	defer unlock()

	if _, err := s.store.GetDevice(ctx, systemID); err != nil {
		return err
	}
	if err := s.closeOpenSessions(ctx, systemID, s.now()); err != nil {
		return err
	}
	if err := s.store.UnbindHardware(ctx, systemID); err != nil {
		return err
	}
	s.log.WithField("system_id", systemID).Info("unbound machine")
	return nil
}

func (s *Service) AvailableSystems(ctx context.Context) ([]Device, error) {
	return s.store.ListUnbound(ctx)
}

// Provision creates an unbound slot.
func (s *Service) Provision(ctx context.Context, d Device) (Device, error) {
	d.SystemID = strings.TrimSpace(d.SystemID)
	if d.SystemID == "" {
		return Device{}, fmt.Errorf("%w: missing system_id", ErrInvalidInput)
	}
	d.HardwareID = ""
	d.Status = StatusOffline
	d.LastSeen, d.TodayStartTime, d.TodayLastActive = nil, nil, nil
	d.AppUsage = UsageMap{}

	if err := s.store.CreateDevice(ctx, d); err != nil {
		return Device{}, err
	}
	return d, nil
}

// DeviceQuery filters the dashboard list. Status is "online", "offline" or empty.
type DeviceQuery struct {
	City   string
	Status string
	Search string
}

type DeviceView struct {
	Device
	Online bool
}

// ListDevices returns bound devices, online first, then by pc_name. Online is
// recomputed against the presence threshold rather than trusted from the row.
func (s *Service) ListDevices(ctx context.Context, q DeviceQuery) ([]DeviceView, time.Time, error) {
	s.selfHeal(ctx)
	now := s.now()

	devs, err := s.store.ListDevices(ctx, DeviceFilter{City: q.City, Search: q.Search})
	if err != nil {
		return nil, now, err
	}

	out := make([]DeviceView, 0, len(devs))
	for _, d := range devs {
		if !d.Bound() {
			continue
		}
		online := d.OnlineAt(now, s.offlineAfter)
		if (q.Status == string(StatusOnline) && !online) || (q.Status == string(StatusOffline) && online) {
			continue
		}
		out = append(out, DeviceView{Device: d, Online: online})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Online != out[j].Online {
			return out[i].Online
		}
		return out[i].PCName < out[j].PCName
	})
	return out, now, nil
}

// DeviceDetail returns one slot with its last seven daily rows.
func (s *Service) DeviceDetail(ctx context.Context, systemID string) (Device, []DailySummary, time.Time, error) {
	s.selfHeal(ctx)
	now := s.now()

	dev, err := s.store.GetDevice(ctx, systemID)
	if err != nil {
		return Device{}, nil, now, err
	}
	hist, err := s.store.ListDailySummaries(ctx, systemID, 7)
	if err != nil {
		return Device{}, nil, now, err
	}
	return dev, hist, now, nil
}

// UpdateDevice applies an operator edit of pc_name, city and lab_name.
func (s *Service) UpdateDevice(ctx context.Context, systemID string, p LocationPatch) (Device, error) {
	unlock := s.locks.Lock(systemID)
	defer unlock()

	if _, err := s.store.GetDevice(ctx, systemID); err != nil {
		return Device{}, err
	}
	edit := LocationPatch{City: p.City, LabName: p.LabName, PCName: p.PCName}
	if !edit.Empty() {
		if err := s.store.UpdateLocation(ctx, systemID, edit); err != nil {
			return Device{}, err
		}
	}
	return s.store.GetDevice(ctx, systemID)
}
