// Package health exposes liveness and readiness probes.
package health

import (
	"context"
	"net/http"
	"time"

	"labguard/internal/models"

	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

// Counter reports how many device slots exist. The tracker store satisfies it.
type Counter interface {
	CountDevices(ctx context.Context) (int64, error)
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	models.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RegisterRoutes mounts /healthz and a /readyz that only checks the store.
func RegisterRoutes(r *mux.Router, c Counter) {
	r.HandleFunc("/healthz", healthz).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/readyz", readyz(nil, c)).Methods(http.MethodGet, http.MethodHead)
}

// RegisterRoutesWithDB additionally pings the database on /readyz.
func RegisterRoutesWithDB(r *mux.Router, db *gorm.DB, c Counter) {
	r.HandleFunc("/healthz", healthz).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/readyz", readyz(db, c)).Methods(http.MethodGet, http.MethodHead)
}

func readyz(db *gorm.DB, c Counter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		out := map[string]any{"status": "ready"}
		if db != nil {
			sqlDB, err := db.DB()
			if err == nil {
				err = sqlDB.PingContext(ctx)
			}
			if err != nil {
				models.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "error": err.Error()})
				return
			}
			out["db"] = db.Dialector.Name()
		}
		if c != nil {
			n, err := c.CountDevices(ctx)
			if err != nil {
				models.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "error": err.Error()})
				return
			}
			out["devices"] = n
		}
		models.WriteJSON(w, http.StatusOK, out)
	}
}
