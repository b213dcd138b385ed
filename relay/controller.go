package relay

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"scribe/llm"
	"scribe/metrics"
	"scribe/session"
	"scribe/stt"
)

// Config carries the per-deployment relay parameters.
type Config struct {
	Recognition     stt.Config
	SummaryInterval time.Duration
	SummaryTimeout  time.Duration
}

// Controller owns session lifecycles: it creates the session on
// connect, starts the audio pump and transcript forwarder, and
// guarantees a single coordinated teardown on any terminal event.
type Controller struct {
	store      *session.Store
	recognizer stt.Recognizer
	summarizer llm.Summarizer
	cfg        Config
	metrics    *metrics.Metrics
	logger     *log.Logger
	clock      func() time.Time
}

func NewController(
	store *session.Store,
	recognizer stt.Recognizer,
	summarizer llm.Summarizer,
	cfg Config,
	m *metrics.Metrics,
	logger *log.Logger,
) *Controller {
	return &Controller{
		store:      store,
		recognizer: recognizer,
		summarizer: summarizer,
		cfg:        cfg,
		metrics:    m,
		logger:     logger,
		clock:      time.Now,
	}
}

// Run drives one client connection from connect to close. It returns
// after the session has been removed from the store and all
// background work for it has finished.
func (c *Controller) Run(ctx context.Context, conn Conn, clientID string) {
	logger := c.logger.With("session", clientID)

	sess := session.New(clientID, session.DefaultCapacity, c.clock)
	if err := c.store.Add(sess); err != nil {
		logger.Warn("rejecting duplicate connection", "error", err)
		conn.WriteClose(websocket.ClosePolicyViolation, "session already active")
		conn.Close()
		return
	}
	defer c.store.Remove(sess.ID)

	c.metrics.SessionsStarted.Inc()
	c.metrics.ActiveSessions.Inc()
	defer c.metrics.ActiveSessions.Dec()
	defer func() {
		c.metrics.SessionDurationSecond.Observe(c.clock().Sub(sess.StartedAt).Seconds())
	}()

	logger.Info("connected")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	live, err := c.recognizer.Start(ctx, c.cfg.Recognition)
	if err != nil {
		logger.Error("failed to start recognition stream", "error", err)
		c.metrics.SessionErrors.Inc()
		conn.WriteClose(websocket.CloseInternalServerErr, "")
		conn.Close()
		return
	}

	sched := &scheduler{
		ctx:        ctx,
		conn:       conn,
		sess:       sess,
		summarizer: c.summarizer,
		interval:   c.cfg.SummaryInterval,
		timeout:    c.cfg.SummaryTimeout,
		metrics:    c.metrics,
		logger:     logger,
	}
	fwd := &forwarder{
		conn:    conn,
		sess:    sess,
		sched:   sched,
		metrics: c.metrics,
		logger:  logger,
	}
	pump := &audioPump{
		conn:    conn,
		sess:    sess,
		live:    live,
		metrics: c.metrics,
		logger:  logger,
	}

	// Server shutdown unblocks the pump by closing the connection.
	sessionDone := make(chan struct{})
	defer close(sessionDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-sessionDone:
		}
	}()

	pumpDone := make(chan error, 1)
	go func() {
		err := pump.run()
		pumpDone <- err
		// A client disconnect ends the request stream; stopping the
		// recognizer closes the response stream and lets the
		// forwarder drain out.
		if sess.BeginClose() {
			logger.Info("client stream ended")
		}
		live.Stop()
	}()

	fwdErr := fwd.run(live.Receive())

	if sess.BeginClose() {
		logger.Info("recognizer stream ended")
	}
	cancel()
	live.Stop()

	// Graceful close attempt first; the peer may already be gone.
	conn.WriteClose(websocket.CloseNormalClosure, "")
	conn.Close()

	pumpErr := <-pumpDone
	sched.wait()

	c.reportFault(logger, "forwarder", fwdErr)
	c.reportFault(logger, "audio", pumpErr)
	if streamErr := live.Err(); streamErr != nil {
		if stt.IsStreamReset(streamErr) {
			logger.Info("recognizer stream reset", "error", streamErr)
		} else {
			logger.Error("recognizer stream failed", "error", streamErr)
			c.metrics.SessionErrors.Inc()
		}
	}

	sess.MarkClosed()

	logger.Info("disconnected", "state", sess.State())
}

func (c *Controller) reportFault(logger *log.Logger, origin string, err error) {
	if err == nil {
		return
	}
	if stt.IsStreamReset(err) {
		logger.Info("stream reset", "origin", origin, "error", err)
		return
	}
	logger.Error("session fault", "origin", origin, "error", err)
	c.metrics.SessionErrors.Inc()
}
