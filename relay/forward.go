package relay

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"scribe/metrics"
	"scribe/session"
	"scribe/stt"
)

// forwarder consumes the recognizer's response stream, sends an
// annotated transcript frame to the client for every usable result,
// and appends final results to the session's transcript buffer. The
// summary scheduler is invoked synchronously after each final append,
// so transcript processing stays single-threaded per session.
type forwarder struct {
	conn    Conn
	sess    *session.Session
	sched   *scheduler
	metrics *metrics.Metrics
	logger  *log.Logger
}

// run drains results until the recognizer closes the stream. A write
// failure to the client is the only error it raises itself.
func (f *forwarder) run(results <-chan stt.Result) error {
	for result := range results {
		if err := f.process(result); err != nil {
			return err
		}
	}
	return nil
}

func (f *forwarder) process(result stt.Result) error {
	if len(result.Alternatives) == 0 {
		return nil
	}

	text := strings.TrimSpace(result.Alternatives[0].Transcript)
	if text == "" {
		return nil
	}

	elapsed := f.sess.Elapsed()
	speaker := f.speakerFor(result.IsFinal)

	msg := transcriptMessage{
		Type:      "transcript",
		Timestamp: formatTimestamp(elapsed),
		Speaker:   speaker,
		Text:      text,
		IsFinal:   result.IsFinal,
	}
	if err := f.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to send transcript: %w", err)
	}

	finality := "interim"
	if result.IsFinal {
		finality = "final"
	}
	f.metrics.TranscriptsForwarded.WithLabelValues(finality).Inc()

	if result.IsFinal {
		line := session.TranscriptLine{
			Timestamp: elapsed,
			Text:      text,
			IsFinal:   true,
		}
		if speaker != nil {
			line.Speaker = *speaker
		}
		f.sess.Append(line)
		f.logger.Info("hear", "txt", text, "at", msg.Timestamp)

		f.sched.onFinal(elapsed)
	}

	return nil
}

// speakerFor attributes a result to a labeled speaker. Attribution is
// inferred from finality alone: the client protocol carries no
// per-chunk source tag, so final results go to the panelist and
// interim ones to the candidate.
func (f *forwarder) speakerFor(isFinal bool) *string {
	if isFinal {
		if name, ok := f.sess.Speaker("panelist"); ok {
			return &name
		}
	}
	if name, ok := f.sess.Speaker("candidate"); ok {
		return &name
	}
	return nil
}
