package agentctl

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"labguard/internal/logs"
	"labguard/internal/models"
	"labguard/internal/tracker"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

/*
Endpoints for the lab agent:

POST /api/auth               {hardware_id, city?, college?, lab_name?, pc_name?}
POST /api/heartbeat          {hardware_id, status, cpu_score, runtime_minutes, app_usage, ...}
POST /api/bind               {hardware_id, system_id}
POST /api/unbind             {system_id}
GET  /api/available-systems
POST /api/sync-offline-data  {system_id, date, runtime_minutes, app_usage, ...}

Agents post without a reliable Content-Type; bodies are parsed as JSON
regardless and anything that is not an object counts as empty.
*/

const maxBody = 1 << 20

type Controller struct {
	svc *tracker.Service
	log logrus.FieldLogger
}

func NewController(svc *tracker.Service, log logrus.FieldLogger) *Controller {
	return &Controller{svc: svc, log: logs.Or(log).WithField("component", "agentctl")}
}

// decodeBody читает тело как JSON-объект. Ошибки разбора не возвращаются:
// отсутствующие поля потом ловит валидация.
func decodeBody(r *http.Request) map[string]any {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil || len(raw) == 0 {
		return map[string]any{}
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return map[string]any{}
	}
	m, ok := v.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return m
}

func field(raw map[string]any, key string) string {
	s, _ := raw[key].(string)
	return strings.TrimSpace(s)
}

func serverTime(t time.Time) string { return t.UTC().Format(models.ServerTimeLayout) }

// POST /api/auth
func (c *Controller) handleAuth(w http.ResponseWriter, r *http.Request) {
	hb := c.svc.Sanitizer().Heartbeat(decodeBody(r))
	loc := hb.Location()
	loc.PCName = hb.PCName

	dev, found, err := c.svc.Authenticate(r.Context(), hb.HardwareID, loc)
	if err != nil {
		c.writeErr(w, r, err)
		return
	}
	if !found {
		models.WriteJSON(w, http.StatusOK, map[string]any{
			"status":      "unregistered",
			"hardware_id": hb.HardwareID,
			"message":     "hardware id not found in registry",
		})
		return
	}
	models.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "authorized",
		"system_id": dev.SystemID,
		"city":      dev.City,
		"college":   dev.College,
		"lab_name":  dev.LabName,
		"pc_name":   dev.PCName,
	})
}

// POST /api/heartbeat
func (c *Controller) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	hb := c.svc.Sanitizer().Heartbeat(decodeBody(r))

	res, err := c.svc.Heartbeat(r.Context(), hb)
	if err != nil {
		c.writeErr(w, r, err)
		return
	}
	if !res.Registered {
		models.WriteJSON(w, http.StatusOK, map[string]any{
			"status":      "unregistered",
			"hardware_id": res.HardwareID,
			"message":     "this machine is not bound to a system id, call /api/bind first",
		})
		return
	}
	models.WriteJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"system_id":   res.SystemID,
		"server_time": serverTime(res.ServerTime),
	})
}

// POST /api/bind
func (c *Controller) handleBind(w http.ResponseWriter, r *http.Request) {
	raw := decodeBody(r)
	dev, err := c.svc.Bind(r.Context(), field(raw, "hardware_id"), field(raw, "system_id"))
	if err != nil {
		c.writeErr(w, r, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"system_id": dev.SystemID,
		"city":      dev.City,
		"college":   dev.College,
		"lab_name":  dev.LabName,
	})
}

// POST /api/unbind
func (c *Controller) handleUnbind(w http.ResponseWriter, r *http.Request) {
	id := field(decodeBody(r), "system_id")
	if err := c.svc.Unbind(r.Context(), id); err != nil {
		c.writeErr(w, r, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, map[string]any{"status": "unbound", "system_id": id})
}

type availableSystem struct {
	SystemID string `json:"system_id"`
	City     string `json:"city"`
	College  string `json:"college"`
	LabName  string `json:"lab_name"`
}

// GET /api/available-systems
func (c *Controller) handleAvailable(w http.ResponseWriter, r *http.Request) {
	devs, err := c.svc.AvailableSystems(r.Context())
	if err != nil {
		c.writeErr(w, r, err)
		return
	}
	out := make([]availableSystem, 0, len(devs))
	for _, d := range devs {
		out = append(out, availableSystem{SystemID: d.SystemID, City: d.City, College: d.College, LabName: d.LabName})
	}
	models.WriteJSON(w, http.StatusOK, out)
}

// POST /api/sync-offline-data
func (c *Controller) handleSyncOffline(w http.ResponseWriter, r *http.Request) {
	in := c.svc.Sanitizer().OfflineSync(decodeBody(r))
	res, err := c.svc.SyncOffline(r.Context(), in)
	if err != nil {
		c.writeErr(w, r, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, map[string]any{"status": "synced", "merged": true, "date": res.Date})
}

// writeErr переводит доменные ошибки в HTTP-коды; всё неизвестное — 500.
func (c *Controller) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, tracker.ErrInvalidInput),
		errors.Is(err, tracker.ErrAlreadyBound),
		errors.Is(err, tracker.ErrHardwareInUse):
		models.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, tracker.ErrNotFound):
		models.WriteError(w, http.StatusNotFound, "system id not found")
	default:
		c.log.WithError(err).WithField("uri", r.RequestURI).Error("agent request failed")
		models.WriteError(w, http.StatusInternalServerError, err.Error())
	}
}

// ─────────────────────────── route registrars ───────────────────────────

// RegisterRoutes монтирует /api/* агента. mws (обычно rate limit)
// применяются только к этому подроутеру.
func (c *Controller) RegisterRoutes(root *mux.Router, mws ...mux.MiddlewareFunc) {
	sub := root.PathPrefix("/api").Subrouter()
	sub.Use(mws...)

	sub.HandleFunc("/auth", c.handleAuth).Methods(http.MethodPost)
	sub.HandleFunc("/heartbeat", c.handleHeartbeat).Methods(http.MethodPost)
	sub.HandleFunc("/bind", c.handleBind).Methods(http.MethodPost)
	sub.HandleFunc("/unbind", c.handleUnbind).Methods(http.MethodPost)
	sub.HandleFunc("/available-systems", c.handleAvailable).Methods(http.MethodGet)
	sub.HandleFunc("/sync-offline-data", c.handleSyncOffline).Methods(http.MethodPost)
}
