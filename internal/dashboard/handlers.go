// Package dashboard serves the operator views of the device registry.
package dashboard

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"labguard/internal/logs"
	"labguard/internal/models"
	"labguard/internal/tracker"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	svc *tracker.Service
	log logrus.FieldLogger
}

func NewHandler(svc *tracker.Service, log logrus.FieldLogger) *Handler {
	return &Handler{svc: svc, log: logs.Or(log).WithField("component", "dashboard")}
}

// RegisterRoutes mounts the device list, detail and edit endpoints.
func (h *Handler) RegisterRoutes(root *mux.Router) {
	root.HandleFunc("/api/devices", h.list).Methods(http.MethodGet)
	root.HandleFunc("/api/devices/{id}", h.detail).Methods(http.MethodGet)
	root.HandleFunc("/api/devices/{id}", h.update).Methods(http.MethodPatch)
}

// GET /api/devices?city=&status=&search=
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	devs, now, err := h.svc.ListDevices(r.Context(), tracker.DeviceQuery{
		City:   q.Get("city"),
		Status: q.Get("status"),
		Search: q.Get("search"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]deviceView, 0, len(devs))
	for _, d := range devs {
		v := viewOf(d.Device)
		online := d.Online
		v.IsOnline = &online
		out = append(out, v)
	}
	models.WriteJSON(w, http.StatusOK, map[string]any{
		"devices":     out,
		"server_time": now.UTC().Format(models.ServerTimeLayout),
	})
}

// GET /api/devices/{id}
func (h *Handler) detail(w http.ResponseWriter, r *http.Request) {
	dev, hist, now, err := h.svc.DeviceDetail(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	history := make([]historyView, 0, len(hist))
	for _, s := range hist {
		history = append(history, historyOf(s))
	}
	models.WriteJSON(w, http.StatusOK, map[string]any{
		"device":      viewOf(dev),
		"history":     history,
		"server_time": now.UTC().Format(models.ServerTimeLayout),
	})
}

type patchBody struct {
	PCName  string `json:"pc_name"`
	City    string `json:"city"`
	LabName string `json:"lab_name"`
}

// PATCH /api/devices/{id}
func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var body patchBody
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&body); err != nil {
		models.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	dev, err := h.svc.UpdateDevice(r.Context(), mux.Vars(r)["id"], tracker.LocationPatch{
		PCName: body.PCName, City: body.City, LabName: body.LabName,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, map[string]any{"status": "updated", "device": viewOf(dev)})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, tracker.ErrNotFound) {
		models.WriteError(w, http.StatusNotFound, "device not found")
		return
	}
	h.log.WithError(err).WithField("uri", r.RequestURI).Error("dashboard request failed")
	models.WriteError(w, http.StatusInternalServerError, err.Error())
}

