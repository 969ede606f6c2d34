package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"speech-presenter/internal/chord"
)

// Playback is the set of controller operations the API drives.
type Playback interface {
	PlayPause(ctx context.Context)
	Next(ctx context.Context)
	Prev(ctx context.Context)
}

// Hub is the connection lifecycle of the command channel.
type Hub interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Connected() bool
}

// ChordObserver is told about every fired chord.
type ChordObserver interface {
	ChordFired(action string)
}

// API handles HTTP control endpoints.
type API struct {
	playback Playback
	hub      Hub
	chords   *chord.Detector
	store    *Store
	observer ChordObserver
	log      *slog.Logger
}

// NewAPI creates a new API handler. observer may be nil.
func NewAPI(playback Playback, hub Hub, chords *chord.Detector, store *Store, observer ChordObserver, log *slog.Logger) *API {
	if log == nil {
		log = slog.Default()
	}
	return &API{
		playback: playback,
		hub:      hub,
		chords:   chords,
		store:    store,
		observer: observer,
		log:      log.With("component", "api"),
	}
}

// KeyRequest is the request body for the keys endpoint.
type KeyRequest struct {
	Key  string `json:"key" binding:"required"`
	Type string `json:"type" binding:"required,oneof=keydown keyup"`
}

// ActionResponse is the response for playback and key endpoints.
type ActionResponse struct {
	Action string `json:"action"`
	Status Status `json:"status"`
}

// HubResponse is the response for hub endpoints.
type HubResponse struct {
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}

// ErrorResponse is returned on invalid requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Status returns the current presenter status.
func (a *API) Status(c *gin.Context) {
	c.JSON(http.StatusOK, a.store.Status())
}

// Toggle starts or pauses the current segment.
func (a *API) Toggle(c *gin.Context) {
	a.playback.PlayPause(c.Request.Context())
	a.respond(c, "toggle")
}

// Next moves to the following segment.
func (a *API) Next(c *gin.Context) {
	a.playback.Next(c.Request.Context())
	a.respond(c, chord.ActionNext.String())
}

// Prev moves to the preceding segment.
func (a *API) Prev(c *gin.Context) {
	a.playback.Prev(c.Request.Context())
	a.respond(c, chord.ActionPrev.String())
}

// Keys feeds a key event to the chord detector and runs the fired action.
func (a *API) Keys(c *gin.Context) {
	var req KeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: fmt.Sprintf("invalid request: %v", err),
		})
		return
	}

	typ, err := chord.ParseEventType(req.Type)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	action, err := a.chords.HandleName(req.Key, typ)
	if errors.Is(err, chord.ErrUnknownKey) {
		a.respond(c, "ignored")
		return
	}

	switch action {
	case chord.ActionNext:
		a.playback.Next(c.Request.Context())
	case chord.ActionPrev:
		a.playback.Prev(c.Request.Context())
	}
	if action != chord.ActionNone {
		a.log.Debug("chord fired", "action", action.String())
		if a.observer != nil {
			a.observer.ChordFired(action.String())
		}
	}
	a.respond(c, action.String())
}

// HubConnect opens the hub connection.
func (a *API) HubConnect(c *gin.Context) {
	if err := a.hub.Connect(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, HubResponse{
			Connected: a.hub.Connected(),
			Error:     err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, HubResponse{Connected: a.hub.Connected()})
}

// HubDisconnect closes the hub connection.
func (a *API) HubDisconnect(c *gin.Context) {
	if err := a.hub.Disconnect(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, HubResponse{
			Connected: a.hub.Connected(),
			Error:     err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, HubResponse{Connected: a.hub.Connected()})
}

func (a *API) respond(c *gin.Context, action string) {
	c.JSON(http.StatusOK, ActionResponse{
		Action: action,
		Status: a.store.Status(),
	})
}
