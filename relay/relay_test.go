package relay

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"scribe/metrics"
	"scribe/session"
	"scribe/stt"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AdvanceTo(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = time.Unix(0, 0).Add(d)
}

type scriptedRead struct {
	msgType int
	data    []byte
	err     error
}

type mockConn struct {
	mu        sync.Mutex
	frames    []interface{}
	closeCode int
	hasClose  bool
	closed    bool
	reads     chan scriptedRead
}

func newMockConn() *mockConn {
	return &mockConn{reads: make(chan scriptedRead, 16)}
}

func (c *mockConn) ReadMessage() (int, []byte, error) {
	r, ok := <-c.reads
	if !ok {
		return 0, nil, &websocket.CloseError{
			Code: websocket.CloseNormalClosure,
		}
	}
	if r.err != nil {
		return 0, nil, r.err
	}
	return r.msgType, r.data, nil
}

func (c *mockConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, v)
	return nil
}

func (c *mockConn) WriteClose(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasClose {
		c.closeCode = code
		c.hasClose = true
	}
	return nil
}

func (c *mockConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *mockConn) sentFrames() []interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]interface{}, len(c.frames))
	copy(out, c.frames)
	return out
}

func (c *mockConn) summaries() []summaryMessage {
	var out []summaryMessage
	for _, f := range c.sentFrames() {
		if s, ok := f.(summaryMessage); ok {
			out = append(out, s)
		}
	}
	return out
}

func (c *mockConn) transcripts() []transcriptMessage {
	var out []transcriptMessage
	for _, f := range c.sentFrames() {
		if m, ok := f.(transcriptMessage); ok {
			out = append(out, m)
		}
	}
	return out
}

type mockSummarizer struct {
	mu    sync.Mutex
	calls []string
	reply string
	err   error
}

func (m *mockSummarizer) Summarize(
	ctx context.Context,
	conversation string,
) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, conversation)
	if m.err != nil {
		return "", m.err
	}
	return m.reply, nil
}

func (m *mockSummarizer) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type mockLive struct {
	mu      sync.Mutex
	sent    [][]byte
	sendErr error
	results chan stt.Result
	err     error
	finish  sync.Once
}

func newMockLive() *mockLive {
	return &mockLive{results: make(chan stt.Result, 16)}
}

func (m *mockLive) SendAudio(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, data)
	return nil
}

func (m *mockLive) Receive() <-chan stt.Result {
	return m.results
}

func (m *mockLive) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *mockLive) Stop() error {
	m.finish.Do(func() {
		close(m.results)
	})
	return nil
}

func (m *mockLive) sentChunks() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.sent))
	copy(out, m.sent)
	return out
}

type mockRecognizer struct {
	live *mockLive
	err  error
}

func (r *mockRecognizer) Start(
	ctx context.Context,
	cfg stt.Config,
) (stt.LiveSession, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.live, nil
}

type rig struct {
	clock *fakeClock
	conn  *mockConn
	sess  *session.Session
	sum   *mockSummarizer
	sched *scheduler
	fwd   *forwarder
}

func newRig(t *testing.T) *rig {
	t.Helper()
	clock := &fakeClock{now: time.Unix(0, 0)}
	conn := newMockConn()
	sess := session.New("test", session.DefaultCapacity, clock.Now)
	sum := &mockSummarizer{reply: "- point one\n- point two"}
	m := metrics.New(prometheus.NewRegistry())
	logger := log.New(io.Discard)

	sched := &scheduler{
		ctx:        context.Background(),
		conn:       conn,
		sess:       sess,
		summarizer: sum,
		interval:   30 * time.Second,
		timeout:    time.Second,
		metrics:    m,
		logger:     logger,
	}
	fwd := &forwarder{
		conn:    conn,
		sess:    sess,
		sched:   sched,
		metrics: m,
		logger:  logger,
	}
	return &rig{
		clock: clock,
		conn:  conn,
		sess:  sess,
		sum:   sum,
		sched: sched,
		fwd:   fwd,
	}
}

func finalResult(text string) stt.Result {
	return stt.Result{
		Alternatives: []stt.Alternative{{Transcript: text, Confidence: 0.9}},
		IsFinal:      true,
	}
}

func interimResult(text string) stt.Result {
	return stt.Result{
		Alternatives: []stt.Alternative{{Transcript: text, Confidence: 0.5}},
	}
}
