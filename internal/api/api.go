// internal/api/api.go
// Provides StartServer and HTTP API logic as a package.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/gymstack/presenced/internal/hub"
	"github.com/gymstack/presenced/internal/logger"
	"github.com/gymstack/presenced/internal/training"
	"github.com/gymstack/presenced/internal/util"
)

const (
	jetstreamRetention    = 7 * 24 * time.Hour
	historyConsumerPrefix = "HISTORY_CONSUMER_"
	historyFetchBatch     = 100
	historyFetchMaxWait   = 2 * time.Second
	shutdownTimeout       = 10 * time.Second
)

// Server wires the hub, the training store and the HTTP surface together.
type Server struct {
	hub    *hub.Hub
	store  *training.MongoStore
	nc     *nats.Conn
	js     nats.JetStreamContext
	logger *logger.Logger
}

// StartServer connects the collaborators, starts the hub and serves HTTP
// until the process receives an interrupt. It blocks for the lifetime of
// the server.
func StartServer(cfg util.Config, serverLogger *logger.Logger) error {
	nc, js := connectNATS(cfg.NatsURL, serverLogger)

	var store *training.MongoStore
	s, err := training.NewMongoStore(cfg.Mongo)
	if err != nil {
		serverLogger.Errorf("Error connecting to MongoDB: %v", err)
		serverLogger.Warn("Running without training store. Training-level pushes will be skipped.")
	} else {
		store = s
		serverLogger.Infof("Connected to MongoDB at %s", cfg.Mongo.URI)
	}

	presenceHub := hub.NewHub(nc, js, storeOrNil(store), serverLogger)
	go presenceHub.Run()

	srv := &Server{
		hub:    presenceHub,
		store:  store,
		nc:     nc,
		js:     js,
		logger: serverLogger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", presenceHub.ServeWs)
	mux.HandleFunc("GET /health", srv.handleHealth)
	mux.HandleFunc("GET /api/presence", srv.handlePresence)
	mux.HandleFunc("POST /api/notify", srv.handleNotify)
	mux.HandleFunc("GET /api/notifications/{userID}", srv.handleNotifications)
	mux.HandleFunc("POST /api/training/complete", srv.handleTrainingComplete)

	httpServer := &http.Server{Addr: cfg.Addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		serverLogger.Infof("Server started at %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		presenceHub.Close()
		return fmt.Errorf("http server failed: %w", err)
	case sig := <-stop:
		serverLogger.Infof("Received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		serverLogger.Errorf("HTTP shutdown error: %v", err)
	}

	presenceHub.Close()
	if store != nil {
		if err := store.Close(ctx); err != nil {
			serverLogger.Errorf("MongoDB disconnect error: %v", err)
		}
	}
	if nc != nil {
		nc.Drain()
	}
	serverLogger.Info("Shutdown complete")
	return nil
}

// storeOrNil keeps the hub's interface field a true nil when no store is
// configured, instead of a non-nil interface wrapping a nil pointer.
func storeOrNil(store *training.MongoStore) training.Store {
	if store == nil {
		return nil
	}
	return store
}

// connectNATS establishes the NATS connection and ensures the JetStream
// streams exist. The service degrades gracefully: without NATS the hub
// still delivers in-memory, but the event trail and notification history
// are disabled.
func connectNATS(natsURL string, serverLogger *logger.Logger) (*nats.Conn, nats.JetStreamContext) {
	if natsURL == "" {
		natsURL = nats.DefaultURL
	}

	serverLogger.Infof("Connecting to NATS at %s", natsURL)
	nc, err := nats.Connect(natsURL)
	if err != nil {
		serverLogger.Errorf("Error connecting to NATS: %v", err)
		serverLogger.Warn("Running without NATS connection. Event trail will be disabled.")
		return nil, nil
	}
	serverLogger.Info("Successfully connected to NATS")

	js, err := nc.JetStream()
	if err != nil {
		serverLogger.Errorf("Error getting JetStream context: %v", err)
		serverLogger.Warn("Running without JetStream. Event trail will be disabled.")
		return nc, nil
	}

	streams := []struct {
		Name     string
		Subjects []string
	}{
		{Name: hub.StreamPresence, Subjects: []string{"presence.online.*", "presence.away.*", "presence.offline.*"}},
		{Name: hub.StreamNotifications, Subjects: []string{"notifications.*"}},
	}
	for _, s := range streams {
		streamConfig := &nats.StreamConfig{
			Name:     s.Name,
			Subjects: s.Subjects,
			Storage:  nats.FileStorage,
			MaxAge:   jetstreamRetention,
		}
		_, err := js.StreamInfo(streamConfig.Name)
		if err != nil {
			if _, err = js.AddStream(streamConfig); err != nil {
				serverLogger.Errorf("Error creating stream %s: %v", s.Name, err)
			} else {
				serverLogger.Infof("Created stream: %s", s.Name)
			}
		} else {
			if _, err = js.UpdateStream(streamConfig); err != nil {
				serverLogger.Errorf("Error updating stream %s: %v", s.Name, err)
			} else {
				serverLogger.Infof("Updated stream: %s", s.Name)
			}
		}
	}
	return nc, js
}

// handlePresence returns the current presence snapshot plus the active
// user id list.
func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	users := s.hub.Snapshot()
	response := map[string]interface{}{
		"users":  users,
		"active": s.hub.ActiveUsers(),
		"count":  len(users),
	}
	writeJSON(w, http.StatusOK, response)
}

// NotifyRequest is the payload of POST /api/notify.
type NotifyRequest struct {
	UserIDs []string        `json:"user_ids"`
	Payload json.RawMessage `json:"payload"`
}

// Validate checks a notify request for the fields targeted delivery needs.
func (req *NotifyRequest) Validate() error {
	if len(req.UserIDs) == 0 {
		return errors.New("user_ids must not be empty")
	}
	for _, id := range req.UserIDs {
		if id == "" {
			return errors.New("user_ids must not contain empty ids")
		}
	}
	if len(req.Payload) == 0 {
		return errors.New("payload is required")
	}
	return nil
}

func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	var req NotifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.hub.Broadcast(req.UserIDs, req.Payload); err != nil {
		s.logger.Errorf("Notification broadcast failed: %v", err)
		http.Error(w, "notification delivery failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":  "accepted",
		"targets": len(req.UserIDs),
	})
}

// handleNotifications serves a user's recent notification history from the
// JetStream trail via an ephemeral pull consumer.
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if s.js == nil {
		http.Error(w, "JetStream not available", http.StatusServiceUnavailable)
		return
	}
	userID := r.PathValue("userID")
	if userID == "" {
		http.Error(w, "user id required", http.StatusBadRequest)
		return
	}

	subject := hub.NotificationSubject(userID)
	consumerName := fmt.Sprintf("%s%s_%d", historyConsumerPrefix, userID, time.Now().UnixNano())

	_, err := s.js.AddConsumer(hub.StreamNotifications, &nats.ConsumerConfig{
		Name:          consumerName,
		DeliverPolicy: nats.DeliverAllPolicy,
		AckPolicy:     nats.AckExplicitPolicy,
		FilterSubject: subject,
		MaxDeliver:    1,
	})
	if err != nil {
		s.logger.Errorf("Error creating consumer %s for subject %s: %v", consumerName, subject, err)
		http.Error(w, "error retrieving notifications", http.StatusInternalServerError)
		return
	}
	sub, err := s.js.PullSubscribe(subject, consumerName)
	if err != nil {
		s.logger.Errorf("Error subscribing with consumer %s to subject %s: %v", consumerName, subject, err)
		s.js.DeleteConsumer(hub.StreamNotifications, consumerName)
		http.Error(w, "error retrieving notifications", http.StatusInternalServerError)
		return
	}

	defer func() {
		if unsubErr := sub.Unsubscribe(); unsubErr != nil {
			s.logger.Errorf("Error unsubscribing consumer %s: %v", consumerName, unsubErr)
		}
		if delErr := s.js.DeleteConsumer(hub.StreamNotifications, consumerName); delErr != nil {
			s.logger.Errorf("Error deleting consumer %s: %v", consumerName, delErr)
		}
	}()

	msgs, err := sub.Fetch(historyFetchBatch, nats.MaxWait(historyFetchMaxWait))
	if err != nil && err != nats.ErrTimeout {
		s.logger.Errorf("Error fetching notifications with consumer %s: %v", consumerName, err)
		http.Error(w, "error retrieving notifications", http.StatusInternalServerError)
		return
	}

	notifications := make([]json.RawMessage, 0, len(msgs))
	for _, msg := range msgs {
		notifications = append(notifications, json.RawMessage(msg.Data))
		msg.Ack()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":       userID,
		"notifications": notifications,
		"count":         len(notifications),
	})
}

// TrainingCompleteRequest is the payload of POST /api/training/complete.
type TrainingCompleteRequest struct {
	UserID   string `json:"user_id"`
	ModuleID string `json:"module_id"`
}

// Validate checks a training-completion request.
func (req *TrainingCompleteRequest) Validate() error {
	if req.UserID == "" {
		return errors.New("user_id is required")
	}
	if req.ModuleID == "" {
		return errors.New("module_id is required")
	}
	return nil
}

// handleTrainingComplete records a completed training module and pushes the
// user's recomputed level to their live connection, if any. The push is a
// side effect; the write is acknowledged regardless of connection state.
func (s *Server) handleTrainingComplete(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "training store not available", http.StatusServiceUnavailable)
		return
	}

	var req TrainingCompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.store.MarkCompleted(r.Context(), req.UserID, req.ModuleID); err != nil {
		s.logger.Errorf("Failed to record training completion: %v", err)
		http.Error(w, "could not record completion", http.StatusInternalServerError)
		return
	}

	go s.hub.BroadcastTrainingLevel(req.UserID)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "recorded",
		"user_id":   req.UserID,
		"module_id": req.ModuleID,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	natsStatus := "disconnected"
	if s.nc != nil && s.nc.Status() == nats.CONNECTED {
		natsStatus = "connected"
	}
	mongoStatus := "disconnected"
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err == nil {
			mongoStatus = "connected"
		}
	}

	health := map[string]interface{}{
		"status":  "ok",
		"nats":    natsStatus,
		"mongo":   mongoStatus,
		"uptime":  time.Since(s.hub.StartTime).String(),
		"version": "1.0.0",
	}
	if s.js != nil {
		streamInfo := make(map[string]interface{})
		for _, streamName := range []string{hub.StreamPresence, hub.StreamNotifications} {
			info, err := s.js.StreamInfo(streamName)
			if err == nil {
				streamInfo[streamName] = map[string]interface{}{
					"messages":  info.State.Msgs,
					"bytes":     info.State.Bytes,
					"subjects":  info.Config.Subjects,
					"retention": fmt.Sprintf("%v", info.Config.MaxAge),
				}
			} else {
				streamInfo[streamName] = map[string]interface{}{
					"error": err.Error(),
				}
			}
		}
		health["jetstream"] = map[string]interface{}{"streams": streamInfo}
	}
	writeJSON(w, http.StatusOK, health)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
