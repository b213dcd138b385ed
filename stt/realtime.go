package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

const (
	PingInterval = 30 * time.Second
	PongTimeout  = 60 * time.Second

	audioBufferSize = 100
)

// startRecognitionMessage is the configuration frame that opens every
// recognition stream.
type startRecognitionMessage struct {
	Message                    string `json:"message"`
	Encoding                   string `json:"encoding"`
	SampleRateHz               int    `json:"sample_rate_hz"`
	LanguageCode               string `json:"language_code"`
	EnableAutomaticPunctuation bool   `json:"enable_automatic_punctuation"`
	InterimResults             bool   `json:"interim_results"`
}

type wireAlternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

type wireResult struct {
	Alternatives []wireAlternative `json:"alternatives"`
	IsFinal      bool              `json:"is_final"`
}

// RealtimeClient opens streaming recognition sessions against a
// WebSocket speech endpoint.
type RealtimeClient struct {
	URL    string
	APIKey string
	logger *log.Logger
}

func NewRealtimeClient(url, apiKey string, logger *log.Logger) *RealtimeClient {
	return &RealtimeClient{
		URL:    url,
		APIKey: apiKey,
		logger: logger,
	}
}

func (c *RealtimeClient) Start(
	ctx context.Context,
	cfg Config,
) (LiveSession, error) {
	header := http.Header{}
	header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.URL, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to recognizer: %w", err)
	}

	startMsg := startRecognitionMessage{
		Message:                    "StartRecognition",
		Encoding:                   cfg.Encoding,
		SampleRateHz:               cfg.SampleRateHz,
		LanguageCode:               cfg.LanguageCode,
		EnableAutomaticPunctuation: cfg.EnableAutomaticPunctuation,
		InterimResults:             cfg.InterimResults,
	}
	if err := conn.WriteJSON(startMsg); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send StartRecognition message: %w", err)
	}

	s := &realtimeSession{
		conn:    conn,
		logger:  c.logger,
		results: make(chan Result),
		audio:   make(chan []byte, audioBufferSize),
		done:    make(chan struct{}),
	}

	go s.writeLoop()
	go s.readLoop()
	go s.keepAlive(ctx)
	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.done:
		}
	}()

	return s, nil
}

type realtimeSession struct {
	conn    *websocket.Conn
	logger  *log.Logger
	results chan Result
	audio   chan []byte
	done    chan struct{}

	writeMu sync.Mutex
	stop    sync.Once

	errMu sync.Mutex
	err   error
}

func (s *realtimeSession) SendAudio(data []byte) error {
	select {
	case <-s.done:
		return fmt.Errorf("recognition stream closed")
	default:
	}
	select {
	case s.audio <- data:
		return nil
	default:
		return fmt.Errorf("audio buffer full")
	}
}

func (s *realtimeSession) Receive() <-chan Result {
	return s.results
}

func (s *realtimeSession) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Stop sends a close frame once and tears the connection down, which
// unblocks both the read and write loops.
func (s *realtimeSession) Stop() error {
	s.stop.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		s.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		s.writeMu.Unlock()
		s.conn.Close()
	})
	return nil
}

func (s *realtimeSession) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case data := <-s.audio:
			s.writeMu.Lock()
			err := s.conn.WriteMessage(websocket.BinaryMessage, data)
			s.writeMu.Unlock()
			if err != nil {
				s.logger.Error("failed to write audio data", "error", err)
				s.recordErr(err)
				s.Stop()
				return
			}
		}
	}
}

func (s *realtimeSession) readLoop() {
	defer close(s.results)
	for {
		var wire wireResult
		if err := s.conn.ReadJSON(&wire); err != nil {
			select {
			case <-s.done:
			default:
				s.recordErr(err)
			}
			return
		}

		result := Result{IsFinal: wire.IsFinal}
		for _, alt := range wire.Alternatives {
			result.Alternatives = append(result.Alternatives, Alternative{
				Transcript: alt.Transcript,
				Confidence: alt.Confidence,
			})
		}

		select {
		case s.results <- result:
		case <-s.done:
			return
		}
	}
}

func (s *realtimeSession) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(
				websocket.PingMessage,
				[]byte{},
				time.Now().Add(PongTimeout),
			)
			s.writeMu.Unlock()
			if err != nil {
				s.logger.Error("failed to send ping", "error", err)
				return
			}
		}
	}
}

func (s *realtimeSession) recordErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// IsStreamReset reports whether err is an ordinary end-of-stream or
// network blip rather than a fault worth full diagnostics.
func IsStreamReset(err error) bool {
	if err == nil {
		return false
	}
	if websocket.IsCloseError(
		err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
	) {
		return true
	}
	if errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "i/o timeout")
}
