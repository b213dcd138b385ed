package relay

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"scribe/llm"
	"scribe/metrics"
	"scribe/session"
)

// scheduler emits a summary of the trailing transcript window each
// time a finalized line crosses an interval boundary. It piggybacks
// on final-transcript arrival instead of running its own timer, so
// the trigger check and window snapshot always happen on the
// forwarder's goroutine; only the model call and the client write run
// in the background, behind the connection's write mutex.
type scheduler struct {
	ctx        context.Context
	conn       Conn
	sess       *session.Session
	summarizer llm.Summarizer
	interval   time.Duration
	timeout    time.Duration
	metrics    *metrics.Metrics
	logger     *log.Logger

	inflight sync.WaitGroup
}

// onFinal runs synchronously from the forwarder after each final line
// is appended. elapsed is the new line's elapsed timestamp.
func (s *scheduler) onFinal(elapsed time.Duration) {
	boundary := elapsed.Truncate(s.interval)
	if boundary <= 0 || boundary <= s.sess.LastSummaryMark() {
		return
	}

	window := s.sess.Window(boundary-s.interval, boundary)
	s.sess.AdvanceSummaryMark(boundary)
	if len(window) == 0 {
		return
	}

	excerpt := formatConversation(window)
	s.inflight.Add(1)
	go s.deliver(boundary, excerpt)
}

func (s *scheduler) deliver(boundary time.Duration, excerpt string) {
	defer s.inflight.Done()

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	text, err := s.summarizer.Summarize(ctx, excerpt)
	if err != nil {
		s.metrics.SummaryErrors.Inc()
		s.logger.Error("failed to generate summary", "error", err)
		return
	}

	msg := summaryMessage{
		Type:      "summary",
		Timestamp: formatTimestamp(boundary),
		Text:      text,
	}
	if err := s.conn.WriteJSON(msg); err != nil {
		s.logger.Error("failed to send summary", "error", err)
		return
	}
	s.metrics.Summaries.Inc()
}

// wait blocks until all in-flight summary deliveries have finished.
func (s *scheduler) wait() {
	s.inflight.Wait()
}

// formatConversation renders window lines as "speaker: text", one per
// line, in chronological order.
func formatConversation(lines []session.TranscriptLine) string {
	var sb strings.Builder
	for i, line := range lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		if line.Speaker != "" {
			sb.WriteString(line.Speaker)
			sb.WriteString(": ")
		}
		sb.WriteString(line.Text)
	}
	return sb.String()
}
