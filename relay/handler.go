package relay

import (
	"context"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Handler upgrades client connections and hands them to the
// lifecycle controller.
type Handler struct {
	controller *Controller
	configured bool
	logger     *log.Logger
	upgrader   websocket.Upgrader

	// base context for sessions; cancelled on server shutdown
	ctx context.Context
}

func NewHandler(
	ctx context.Context,
	controller *Controller,
	configured bool,
	logger *log.Logger,
) *Handler {
	return &Handler{
		controller: controller,
		configured: configured,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		ctx: ctx,
	}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/ws/{clientID}", h.serveWS)
	r.Get("/ws", h.serveWS)
}

func (h *Handler) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	wrapped := NewConn(conn)

	// Sessions cannot start without recognizer and summarizer
	// credentials; the client only ever sees a close code.
	if !h.configured {
		h.logger.Error("rejecting connection, missing external credentials")
		wrapped.WriteClose(websocket.CloseInternalServerErr, "")
		wrapped.Close()
		return
	}

	clientID := chi.URLParam(r, "clientID")
	if clientID == "" {
		clientID = uuid.NewString()
	}

	h.controller.Run(h.ctx, wrapped, clientID)
}
