package autotag

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"

	"github.com/strefethen/metalookup-go/internal/api"
	"github.com/strefethen/metalookup-go/internal/apperrors"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Tokens are checked by the auth middleware, not the origin
	},
}

type startRequest struct {
	Items []Item `json:"items"`
}

// RegisterRoutes wires auto-tag routes to the router.
func RegisterRoutes(router chi.Router, service *Service, logger hclog.Logger) {
	if logger == nil {
		logger = hclog.Default()
	}

	router.Method(http.MethodPost, "/v1/autotag/jobs", api.Handler(startJob(service)))
	router.Method(http.MethodGet, "/v1/autotag/jobs", api.Handler(listJobs(service)))
	router.Method(http.MethodGet, "/v1/autotag/jobs/{id}", api.Handler(getJob(service)))
	router.Method(http.MethodDelete, "/v1/autotag/jobs/{id}", api.Handler(cancelJob(service)))

	// Progress stream for the auto-tag dialog
	router.Method(http.MethodGet, "/ws/autotag/{id}", api.Handler(streamJob(service, logger.Named("autotag-ws"))))
}

func startJob(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		var body startRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return apperrors.NewValidationError("invalid JSON body", nil)
		}
		for i, item := range body.Items {
			if item.Title == "" && item.Artist == "" && item.Album == "" {
				return apperrors.NewValidationError("item needs a title, artist or album", map[string]any{"index": i})
			}
		}

		job, err := service.Start(body.Items)
		if err != nil {
			return jobError(err, "")
		}
		return api.WriteResource(w, http.StatusCreated, job)
	}
}

func listJobs(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteList(w, "/v1/autotag/jobs", service.List(), false)
	}
}

func getJob(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		id := chi.URLParam(r, "id")
		job, err := service.Get(id)
		if err != nil {
			return jobError(err, id)
		}
		return api.WriteResource(w, http.StatusOK, job)
	}
}

func cancelJob(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		id := chi.URLParam(r, "id")
		job, err := service.Cancel(id)
		if err != nil {
			return jobError(err, id)
		}
		return api.WriteResource(w, http.StatusOK, job)
	}
}

// streamJob upgrades to a websocket and forwards job events until the job finishes
// or the client goes away.
func streamJob(service *Service, logger hclog.Logger) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		id := chi.URLParam(r, "id")
		events, unsubscribe, err := service.Subscribe(id)
		if err != nil {
			return jobError(err, id)
		}
		defer unsubscribe()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade failed - error already written to response
			return nil
		}
		defer conn.Close()

		// Drain client frames so close and pong control messages are processed.
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case event, ok := <-events:
				if !ok {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"),
						time.Now().Add(writeTimeout))
					return nil
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteJSON(event); err != nil {
					logger.Debug("stream write failed", "job", id, "error", err)
					return nil
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
					return nil
				}
			case <-gone:
				return nil
			}
		}
	}
}

func jobError(err error, id string) error {
	switch {
	case errors.Is(err, ErrJobNotFound):
		return apperrors.New(apperrors.ErrorCodeJobNotFound, "autotag job not found: "+id).
			WithDetails(map[string]any{"id": id})
	case errors.Is(err, ErrJobFinished):
		return apperrors.New(apperrors.ErrorCodeJobFinished, "autotag job already finished").
			WithDetails(map[string]any{"id": id})
	case errors.Is(err, ErrNoItems), errors.Is(err, ErrTooManyItems):
		return apperrors.NewValidationError(err.Error(), map[string]any{"max_items": MaxItems})
	case errors.Is(err, ErrClosed):
		return apperrors.NewUnavailableError("autotag service is shutting down")
	default:
		return apperrors.NewInternalError("autotag failed")
	}
}
