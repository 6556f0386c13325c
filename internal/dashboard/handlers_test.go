package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"labguard/internal/tracker"

	"github.com/coder/quartz"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type listResponse struct {
	Devices    []deviceView `json:"devices"`
	ServerTime string       `json:"server_time"`
}

type detailResponse struct {
	Device  deviceView    `json:"device"`
	History []historyView `json:"history"`
}

func setup(t *testing.T) (*mux.Router, *tracker.Service, *quartz.Mock) {
	t.Helper()
	ctx := context.Background()
	clock := quartz.NewMock(t)
	clock.Set(time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC))
	log, _ := test.NewNullLogger()
	svc := tracker.NewService(tracker.NewMemStore(), tracker.Options{Clock: clock, Logger: log})

	for _, d := range []tracker.Device{
		{SystemID: "SYS-01", PCName: "PC-B", City: "Lahore"},
		{SystemID: "SYS-02", PCName: "PC-A", City: "Lahore"},
		{SystemID: "SYS-03", PCName: "PC-C", City: "Multan"},
	} {
		_, err := svc.Provision(ctx, d)
		require.NoError(t, err)
	}
	for sys, hw := range map[string]string{"SYS-01": "HW-1", "SYS-02": "HW-2"} {
		_, err := svc.Bind(ctx, hw, sys)
		require.NoError(t, err)
	}

	r := mux.NewRouter()
	NewHandler(svc, log).RegisterRoutes(r)
	return r, svc, clock
}

func get(t *testing.T, r http.Handler, path string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec.Code
}

func TestListOnlineFirst(t *testing.T) {
	r, svc, _ := setup(t)
	_, err := svc.Heartbeat(context.Background(), tracker.Heartbeat{HardwareID: "HW-1", Status: tracker.StatusOnline})
	require.NoError(t, err)

	var resp listResponse
	require.Equal(t, http.StatusOK, get(t, r, "/api/devices", &resp))
	assert.Equal(t, "2026-03-10T10:00:00.000000Z", resp.ServerTime)
	require.Len(t, resp.Devices, 2, "unbound slots are hidden")
	assert.Equal(t, "SYS-01", resp.Devices[0].SystemID)
	require.NotNil(t, resp.Devices[0].IsOnline)
	assert.True(t, *resp.Devices[0].IsOnline)
	assert.Equal(t, "SYS-02", resp.Devices[1].SystemID)
	assert.False(t, *resp.Devices[1].IsOnline)

	resp = listResponse{}
	require.Equal(t, http.StatusOK, get(t, r, "/api/devices?status=offline", &resp))
	require.Len(t, resp.Devices, 1)
	assert.Equal(t, "SYS-02", resp.Devices[0].SystemID)

	resp = listResponse{}
	require.Equal(t, http.StatusOK, get(t, r, "/api/devices?search=pc-a", &resp))
	require.Len(t, resp.Devices, 1)
	assert.Equal(t, "PC-A", resp.Devices[0].PCName)
}

func TestListRecomputesPresence(t *testing.T) {
	r, svc, clock := setup(t)
	_, err := svc.Heartbeat(context.Background(), tracker.Heartbeat{HardwareID: "HW-1", Status: tracker.StatusOnline})
	require.NoError(t, err)

	clock.Advance(90 * time.Second)

	var resp listResponse
	require.Equal(t, http.StatusOK, get(t, r, "/api/devices?status=online", &resp))
	assert.Empty(t, resp.Devices)
}

func TestDetail(t *testing.T) {
	r, svc, _ := setup(t)
	assert.Equal(t, http.StatusNotFound, get(t, r, "/api/devices/SYS-404", nil))

	_, err := svc.SyncOffline(context.Background(), tracker.OfflineSync{
		SystemID: "SYS-01", Date: "2026-03-09", RuntimeMinutes: 40, AppUsage: tracker.UsageMap{"word": 10},
	})
	require.NoError(t, err)

	var resp detailResponse
	require.Equal(t, http.StatusOK, get(t, r, "/api/devices/SYS-01", &resp))
	assert.Equal(t, "SYS-01", resp.Device.SystemID)
	require.NotNil(t, resp.Device.HardwareID)
	assert.Equal(t, "HW-1", *resp.Device.HardwareID)
	assert.Nil(t, resp.Device.IsOnline)
	require.Len(t, resp.History, 1)
	assert.Equal(t, "2026-03-09", resp.History[0].HistoryDate)
	assert.EqualValues(t, 40, resp.History[0].RuntimeMinutes)
}

func TestPatch(t *testing.T) {
	r, _, _ := setup(t)

	patch := func(id, body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/api/devices/"+id, bytes.NewBufferString(body)))
		return rec
	}

	assert.Equal(t, http.StatusBadRequest, patch("SYS-01", "{").Code)
	assert.Equal(t, http.StatusNotFound, patch("SYS-404", `{"pc_name":"X"}`).Code)

	rec := patch("SYS-01", `{"pc_name":"PC-07","lab_name":"Lab 2"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Status string     `json:"status"`
		Device deviceView `json:"device"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "updated", resp.Status)
	assert.Equal(t, "PC-07", resp.Device.PCName)
	assert.Equal(t, "Lab 2", resp.Device.LabName)
	assert.Equal(t, "Lahore", resp.Device.City)
}
