package relay

import (
	"errors"
	"testing"
	"time"

	"scribe/stt"
)

func (r *rig) finalAt(t *testing.T, sec int, text string) {
	t.Helper()
	r.clock.AdvanceTo(time.Duration(sec) * time.Second)
	if err := r.fwd.process(finalResult(text)); err != nil {
		t.Fatalf("process final %q: %v", text, err)
	}
}

func TestSummaryCoversCompletedIntervalOnly(t *testing.T) {
	r := newRig(t)
	r.sess.SetSpeakers(map[string]string{
		"candidate": "Alice",
		"panelist":  "Bob",
	})

	r.finalAt(t, 5, "tell me about yourself")
	r.finalAt(t, 20, "I build streaming systems")
	r.finalAt(t, 32, "what about testing")
	r.sched.wait()

	if got := r.sum.callCount(); got != 1 {
		t.Fatalf("summarizer called %d times, want 1", got)
	}
	want := "Bob: tell me about yourself\nBob: I build streaming systems"
	if r.sum.calls[0] != want {
		t.Errorf("conversation excerpt = %q, want %q", r.sum.calls[0], want)
	}

	summaries := r.conn.summaries()
	if len(summaries) != 1 {
		t.Fatalf("got %d summary frames, want 1", len(summaries))
	}
	if summaries[0].Timestamp != "00:30" {
		t.Errorf(
			"summary timestamp = %q, want 00:30",
			summaries[0].Timestamp,
		)
	}
	if summaries[0].Text != r.sum.reply {
		t.Errorf("summary text = %q, want %q", summaries[0].Text, r.sum.reply)
	}
}

func TestSpeakerAttributionByFinality(t *testing.T) {
	r := newRig(t)
	r.sess.SetSpeakers(map[string]string{
		"candidate": "Alice",
		"panelist":  "Bob",
	})

	r.clock.AdvanceTo(2 * time.Second)
	r.fwd.process(interimResult("hel"))
	r.clock.AdvanceTo(3 * time.Second)
	r.fwd.process(finalResult("hello there"))

	msgs := r.conn.transcripts()
	if len(msgs) != 2 {
		t.Fatalf("got %d transcript frames, want 2", len(msgs))
	}
	if msgs[0].Speaker == nil || *msgs[0].Speaker != "Alice" {
		t.Errorf("interim speaker = %v, want Alice", msgs[0].Speaker)
	}
	if msgs[1].Speaker == nil || *msgs[1].Speaker != "Bob" {
		t.Errorf("final speaker = %v, want Bob", msgs[1].Speaker)
	}
}

func TestSpeakerNullWhenUnlabeled(t *testing.T) {
	r := newRig(t)

	r.clock.AdvanceTo(time.Second)
	r.fwd.process(finalResult("hello"))

	msgs := r.conn.transcripts()
	if len(msgs) != 1 {
		t.Fatalf("got %d transcript frames, want 1", len(msgs))
	}
	if msgs[0].Speaker != nil {
		t.Errorf("speaker = %q, want null", *msgs[0].Speaker)
	}
}

func TestFinalFallsBackToCandidateWithoutPanelist(t *testing.T) {
	r := newRig(t)
	r.sess.SetSpeakers(map[string]string{"candidate": "Alice"})

	r.finalAt(t, 1, "hello")

	msgs := r.conn.transcripts()
	if msgs[0].Speaker == nil || *msgs[0].Speaker != "Alice" {
		t.Errorf("final speaker = %v, want Alice", msgs[0].Speaker)
	}
}

func TestSkipsResultsWithoutAlternatives(t *testing.T) {
	r := newRig(t)

	if err := r.fwd.process(stt.Result{IsFinal: true}); err != nil {
		t.Fatalf("process empty result: %v", err)
	}
	r.fwd.process(finalResult("   "))
	if err := r.fwd.process(finalResult("")); err != nil {
		t.Fatalf("process: %v", err)
	}

	if got := len(r.conn.sentFrames()); got != 0 {
		t.Errorf("sent %d frames, want 0", got)
	}
	if r.sess.Len() != 0 {
		t.Errorf("buffered %d lines, want 0", r.sess.Len())
	}
}

func TestInterimForwardedButNotBuffered(t *testing.T) {
	r := newRig(t)

	r.clock.AdvanceTo(time.Second)
	r.fwd.process(interimResult("partial"))

	if got := len(r.conn.transcripts()); got != 1 {
		t.Fatalf("sent %d transcript frames, want 1", got)
	}
	if r.sess.Len() != 0 {
		t.Errorf("interim result buffered, want empty buffer")
	}
}

func TestTimestampFormat(t *testing.T) {
	r := newRig(t)
	r.finalAt(t, 65, "a minute in")

	msgs := r.conn.transcripts()
	if msgs[0].Timestamp != "01:05" {
		t.Errorf("timestamp = %q, want 01:05", msgs[0].Timestamp)
	}
}

func TestSummaryIdempotentWithinBoundary(t *testing.T) {
	r := newRig(t)

	r.finalAt(t, 10, "early line")
	r.finalAt(t, 31, "first crossing")
	r.finalAt(t, 33, "same boundary")
	r.sched.wait()

	if got := r.sum.callCount(); got != 1 {
		t.Errorf("summarizer called %d times, want 1", got)
	}
}

func TestSummarySkippedWhenWindowEmpty(t *testing.T) {
	r := newRig(t)

	// First line appears 65 s in: the 30 s and 60 s boundaries have
	// nothing to summarize.
	r.finalAt(t, 65, "late start")
	r.sched.wait()
	if got := r.sum.callCount(); got != 0 {
		t.Fatalf("summarizer called %d times, want 0", got)
	}
	if got := len(r.conn.summaries()); got != 0 {
		t.Fatalf("got %d summary frames, want 0", got)
	}

	// The next boundary does cover the 65 s line.
	r.finalAt(t, 92, "second line")
	r.sched.wait()
	if got := r.sum.callCount(); got != 1 {
		t.Fatalf("summarizer called %d times, want 1", got)
	}
	if r.sum.calls[0] != "late start" {
		t.Errorf("excerpt = %q, want %q", r.sum.calls[0], "late start")
	}
}

func TestSummarizerFailureSuppressed(t *testing.T) {
	r := newRig(t)
	r.sum.err = errors.New("model unavailable")

	r.finalAt(t, 10, "a line")
	r.finalAt(t, 31, "crossing")
	r.sched.wait()

	if got := len(r.conn.summaries()); got != 0 {
		t.Errorf("got %d summary frames after failure, want 0", got)
	}
	// The boundary mark advanced anyway; the same interval is never
	// retried.
	r.finalAt(t, 33, "again")
	r.sched.wait()
	if got := r.sum.callCount(); got != 1 {
		t.Errorf("summarizer called %d times, want 1", got)
	}
}

func TestTranscriptOrderingPreserved(t *testing.T) {
	r := newRig(t)

	words := []string{"one", "two", "three", "four"}
	for i, w := range words {
		r.finalAt(t, i+1, w)
	}

	msgs := r.conn.transcripts()
	if len(msgs) != len(words) {
		t.Fatalf("got %d frames, want %d", len(msgs), len(words))
	}
	for i, w := range words {
		if msgs[i].Text != w {
			t.Errorf("frame %d text = %q, want %q", i, msgs[i].Text, w)
		}
	}
	prev := ""
	for _, m := range msgs {
		if m.Timestamp < prev {
			t.Errorf("timestamps regressed: %q after %q", m.Timestamp, prev)
		}
		prev = m.Timestamp
	}
}

func TestSummaryAppearsAfterTriggeringTranscript(t *testing.T) {
	r := newRig(t)

	r.finalAt(t, 10, "content")
	r.finalAt(t, 31, "trigger")
	r.sched.wait()

	frames := r.conn.sentFrames()
	triggerIdx, summaryIdx := -1, -1
	for i, f := range frames {
		switch m := f.(type) {
		case transcriptMessage:
			if m.Text == "trigger" {
				triggerIdx = i
			}
		case summaryMessage:
			summaryIdx = i
		}
	}
	if triggerIdx == -1 || summaryIdx == -1 {
		t.Fatalf("missing frames: trigger=%d summary=%d", triggerIdx, summaryIdx)
	}
	if summaryIdx < triggerIdx {
		t.Error("summary frame emitted before the transcript that triggered it")
	}
}
