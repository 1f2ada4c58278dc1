package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/starcoach/starcoach/internal/answer"
	"github.com/starcoach/starcoach/internal/audio"
	"github.com/starcoach/starcoach/internal/transcript"
)

// ── fakes ────────────────────────────────────────────────────────────────────

type fakeClock struct {
	mu   sync.Mutex
	base time.Time
	cur  time.Time
}

func newFakeClock() *fakeClock {
	base := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	return &fakeClock{base: base, cur: base}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.cur = c.cur.Add(d)
	c.mu.Unlock()
}

type fakeSTT struct {
	mu     sync.Mutex
	calls  int
	script func(call int) (string, error)
}

func (f *fakeSTT) Name() string { return "fake-stt" }
func (f *fakeSTT) Close() error { return nil }
func (f *fakeSTT) Transcribe(ctx context.Context, audio []byte, language string) (string, float64, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	text, err := f.script(call)
	return text, 0.9, err
}

func (f *fakeSTT) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeLLM struct {
	mu       sync.Mutex
	calls    int
	response string
	err      error
	block    chan struct{} // when set, Complete waits for it
}

func (f *fakeLLM) Name() string { return "fake-llm" }
func (f *fakeLLM) Close() error { return nil }
func (f *fakeLLM) Complete(ctx context.Context, system, prompt string) (string, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.response, f.err
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSource struct {
	frames    chan []int16
	closeOnce sync.Once
}

func newFakeSource() *fakeSource {
	return &fakeSource{frames: make(chan []int16, 64)}
}

func (f *fakeSource) Start(ctx context.Context) (<-chan []int16, error) {
	return f.frames, nil
}

func (f *fakeSource) Close() error {
	f.closeOnce.Do(func() { close(f.frames) })
	return nil
}

type failingSource struct{}

func (failingSource) Start(ctx context.Context) (<-chan []int16, error) {
	return nil, errors.New("device unavailable")
}
func (failingSource) Close() error { return nil }

type fakeUploader struct {
	mu    sync.Mutex
	names []string
	bytes int
}

func (f *fakeUploader) Upload(ctx context.Context, objectName, contentType string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	f.names = append(f.names, objectName)
	f.bytes += len(data)
	f.mu.Unlock()
	return "/recordings/" + objectName, nil
}

type recorded struct {
	name    string
	payload any
}

type recorder struct {
	mu     sync.Mutex
	events []recorded
}

func (r *recorder) Publish(name string, payload any) {
	r.mu.Lock()
	r.events = append(r.events, recorded{name, payload})
	r.mu.Unlock()
}

func (r *recorder) all() []recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recorded(nil), r.events...)
}

func (r *recorder) count(name string) int {
	n := 0
	for _, e := range r.all() {
		if e.name == name {
			n++
		}
	}
	return n
}

// waitFor polls until an event with the given name shows up.
func (r *recorder) waitFor(t *testing.T, name string, timeout time.Duration) recorded {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, e := range r.all() {
			if e.name == name {
				return e
			}
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("event %q not published within %v; got %v", name, timeout, names(r.all()))
	return recorded{}
}

func names(events []recorded) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.name
	}
	return out
}

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

// ── direct-drive helpers ─────────────────────────────────────────────────────

const testRate = 100 // samples per second keeps window math readable

// newDirectSession builds a session in the recording state with an
// injectable clock and a prefilled ring, so tests can drive processChunk
// tick by tick without real timers.
func newDirectSession(t *testing.T, sttFake *fakeSTT, llmFake *fakeLLM, ringSeconds int) (*Session, *recorder, *fakeClock) {
	t.Helper()

	rec := &recorder{}
	clk := newFakeClock()

	s := New(Config{
		LiveMode:      true,
		ChunkInterval: 10 * time.Second,
		Overlap:       2 * time.Second,
		MinChunk:      500 * time.Millisecond,
		StopGrace:     200 * time.Millisecond,
		SampleRate:    testRate,
		Channels:      1,
	}, Deps{
		Source:    newFakeSource(),
		STT:       sttFake,
		Answers:   answer.NewService(llmFake, nil, time.Second, testLog()),
		Publisher: rec,
		Logger:    testLog(),
	})

	s.nowFn = clk.Now
	s.ring = audio.NewRing(testRate, 1, 0)
	s.ring.Append(make([]int16, testRate*ringSeconds))

	s.mu.Lock()
	s.state = StateRecording
	s.startedAt = clk.base
	s.mu.Unlock()

	// Direct-drive tests never start the run loop; finalize must not wait
	// on it.
	close(s.runDone)

	return s, rec, clk
}

// ── tests ────────────────────────────────────────────────────────────────────

func TestChunkWindowsOverlap(t *testing.T) {
	sttFake := &fakeSTT{script: func(call int) (string, error) {
		return fmt.Sprintf("chunk %d text", call), nil
	}}
	s, rec, clk := newDirectSession(t, sttFake, &fakeLLM{response: "Situation: x"}, 30)

	clk.Advance(10 * time.Second)
	s.processChunk(context.Background())
	clk.Advance(10 * time.Second)
	s.processChunk(context.Background())

	s.mu.Lock()
	chunks := append([]TranscriptChunk(nil), s.chunks...)
	s.mu.Unlock()

	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(chunks))
	}
	if chunks[0].Start != 0 || chunks[0].End != 10*time.Second {
		t.Errorf("chunk 1 window = [%v, %v], want [0s, 10s]", chunks[0].Start, chunks[0].End)
	}
	if chunks[1].Start != 8*time.Second || chunks[1].End != 20*time.Second {
		t.Errorf("chunk 2 window = [%v, %v], want [8s, 20s]", chunks[1].Start, chunks[1].End)
	}
	if got := rec.count(EventLiveTranscript); got != 2 {
		t.Errorf("live_transcript events = %d, want 2", got)
	}

	// Full transcript accumulates in sequence order.
	e := rec.all()[len(rec.all())-1]
	if p, ok := e.payload.(LiveTranscriptPayload); ok {
		if p.Full != "chunk 1 text chunk 2 text" {
			t.Errorf("full = %q", p.Full)
		}
	}
}

func TestFailedChunkKeepsSuccessBoundary(t *testing.T) {
	sttFake := &fakeSTT{script: func(call int) (string, error) {
		if call == 2 {
			return "", errors.New("stt down")
		}
		return fmt.Sprintf("chunk %d text", call), nil
	}}
	s, rec, clk := newDirectSession(t, sttFake, &fakeLLM{response: "Situation: x"}, 40)

	for i := 0; i < 3; i++ {
		clk.Advance(10 * time.Second)
		s.processChunk(context.Background())
	}

	s.mu.Lock()
	chunks := append([]TranscriptChunk(nil), s.chunks...)
	s.mu.Unlock()

	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2 (one tick failed)", len(chunks))
	}
	// The failed tick at 20s did not advance the boundary, so the next
	// window stretches back to the last success minus the overlap.
	if chunks[1].Start != 8*time.Second || chunks[1].End != 30*time.Second {
		t.Errorf("post-failure window = [%v, %v], want [8s, 30s]", chunks[1].Start, chunks[1].End)
	}

	errs := 0
	for _, e := range rec.all() {
		if e.name == EventError {
			errs++
			if p := e.payload.(ErrorPayload); !strings.Contains(p.Message, "chunk 2") {
				t.Errorf("error message %q must name the failed chunk", p.Message)
			}
		}
	}
	if errs != 1 {
		t.Errorf("error events = %d, want 1", errs)
	}
	// Failure isolation: the tick after the failure still ran.
	if sttFake.callCount() != 3 {
		t.Errorf("stt calls = %d, want 3", sttFake.callCount())
	}
}

func TestQuestionDedupAcrossOverlappingChunks(t *testing.T) {
	const q = "Tell me about a time you led a team."
	sttFake := &fakeSTT{script: func(call int) (string, error) {
		return q, nil // overlap repeats the question verbatim in chunk 2
	}}
	llmFake := &fakeLLM{response: "Situation: led the team.\nResult: shipped."}
	s, rec, clk := newDirectSession(t, sttFake, llmFake, 30)

	clk.Advance(10 * time.Second)
	s.processChunk(context.Background())
	clk.Advance(10 * time.Second)
	s.processChunk(context.Background())

	rec.waitFor(t, EventLiveAnswer, 2*time.Second)

	if got := rec.count(EventQuestionDetected); got != 1 {
		t.Errorf("question_detected events = %d, want 1", got)
	}
	if got := rec.count(EventLiveAnswer); got != 1 {
		t.Errorf("live_answer events = %d, want 1", got)
	}
	if llmFake.callCount() != 1 {
		t.Errorf("answer generations = %d, want exactly 1", llmFake.callCount())
	}
}

func TestTwoQuestionsAnsweredIndependently(t *testing.T) {
	sttFake := &fakeSTT{script: func(call int) (string, error) {
		if call == 1 {
			return "Tell me about a time you led a team. How did it go?", nil
		}
		return "", nil
	}}
	llmFake := &fakeLLM{response: "Situation: x.\nResult: y."}
	s, rec, clk := newDirectSession(t, sttFake, llmFake, 30)

	clk.Advance(10 * time.Second)
	s.processChunk(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for rec.count(EventLiveAnswer) < 2 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}

	if got := rec.count(EventQuestionDetected); got != 2 {
		t.Errorf("question_detected events = %d, want 2", got)
	}
	if got := rec.count(EventLiveAnswer); got != 2 {
		t.Errorf("live_answer events = %d, want 2", got)
	}
	if llmFake.callCount() != 2 {
		t.Errorf("answer generations = %d, want 2", llmFake.callCount())
	}
}

func TestQuestionDetectedPrecedesAnswer(t *testing.T) {
	sttFake := &fakeSTT{script: func(call int) (string, error) {
		return "Describe a time you handled conflicting deadlines.", nil
	}}
	s, rec, clk := newDirectSession(t, sttFake, &fakeLLM{response: "Situation: x"}, 30)

	clk.Advance(10 * time.Second)
	s.processChunk(context.Background())
	rec.waitFor(t, EventLiveAnswer, 2*time.Second)

	detectedAt, answerAt := -1, -1
	for i, e := range rec.all() {
		switch e.name {
		case EventQuestionDetected:
			if detectedAt == -1 {
				detectedAt = i
			}
		case EventLiveAnswer:
			if answerAt == -1 {
				answerAt = i
			}
		}
	}
	if detectedAt == -1 || answerAt == -1 || detectedAt >= answerAt {
		t.Errorf("ordering violated: detected at %d, answer at %d", detectedAt, answerAt)
	}
}

func TestFailedAnswerDoesNotKillSession(t *testing.T) {
	sttFake := &fakeSTT{script: func(call int) (string, error) {
		if call == 1 {
			return "How do you handle production incidents?", nil
		}
		return "plain statement, nothing to detect here", nil
	}}
	llmFake := &fakeLLM{err: errors.New("llm down")}
	s, rec, clk := newDirectSession(t, sttFake, llmFake, 30)

	clk.Advance(10 * time.Second)
	s.processChunk(context.Background())
	rec.waitFor(t, EventError, 2*time.Second)

	// Transcription keeps flowing after the generation failure.
	clk.Advance(10 * time.Second)
	s.processChunk(context.Background())

	if got := rec.count(EventLiveTranscript); got != 2 {
		t.Errorf("live_transcript events = %d, want 2", got)
	}
	if got := rec.count(EventLiveAnswer); got != 0 {
		t.Errorf("live_answer events = %d, want 0", got)
	}

	s.mu.Lock()
	var state AnswerState
	for _, dq := range s.questions {
		state = dq.State
	}
	s.mu.Unlock()
	if state != AnswerFailed {
		t.Errorf("question answer-state = %q, want %q", state, AnswerFailed)
	}
}

func TestSilentTickSkipsTranscription(t *testing.T) {
	sttFake := &fakeSTT{script: func(call int) (string, error) { return "text", nil }}
	s, _, clk := newDirectSession(t, sttFake, &fakeLLM{response: "Situation: x"}, 30)

	clk.Advance(10 * time.Second)
	s.processChunk(context.Background())
	// Barely any new audio since the last success: the tick is skipped
	// and no API call is spent.
	clk.Advance(100 * time.Millisecond)
	s.processChunk(context.Background())

	if sttFake.callCount() != 1 {
		t.Errorf("stt calls = %d, want 1 (silent tick skipped)", sttFake.callCount())
	}
}

func TestEmptyTranscriptionAdvancesBoundary(t *testing.T) {
	sttFake := &fakeSTT{script: func(call int) (string, error) {
		if call == 1 {
			return "   ", nil
		}
		return "later words", nil
	}}
	s, rec, clk := newDirectSession(t, sttFake, &fakeLLM{response: "Situation: x"}, 30)

	clk.Advance(10 * time.Second)
	s.processChunk(context.Background())
	clk.Advance(10 * time.Second)
	s.processChunk(context.Background())

	if got := rec.count(EventLiveTranscript); got != 1 {
		t.Errorf("live_transcript events = %d, want 1 (empty text unpublished)", got)
	}
	s.mu.Lock()
	chunks := append([]TranscriptChunk(nil), s.chunks...)
	s.mu.Unlock()
	if len(chunks) != 1 || chunks[0].Start != 8*time.Second {
		t.Fatalf("chunks = %+v, want one chunk starting at 8s", chunks)
	}
}

func TestClosedSessionPublishesNothing(t *testing.T) {
	sttFake := &fakeSTT{script: func(call int) (string, error) {
		return "What would you do if a release broke production?", nil
	}}
	llmFake := &fakeLLM{response: "Situation: x", block: make(chan struct{})}
	s, rec, clk := newDirectSession(t, sttFake, llmFake, 30)

	clk.Advance(10 * time.Second)
	s.processChunk(context.Background())
	rec.waitFor(t, EventQuestionDetected, 2*time.Second)

	// Stop with the answer still in flight; the grace period elapses and
	// the session closes.
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	<-s.Done()

	rec.waitFor(t, EventLiveSessionComplete, 2*time.Second)
	before := len(rec.all())

	// The in-flight call resolves after closure; its result is discarded.
	close(llmFake.block)
	time.Sleep(50 * time.Millisecond)

	if after := len(rec.all()); after != before {
		t.Errorf("events published after close: %v", names(rec.all())[before:])
	}
	if got := rec.count(EventLiveAnswer); got != 0 {
		t.Errorf("live_answer after close = %d, want 0", got)
	}
	if s.State() != StateClosed {
		t.Errorf("state = %v, want closed", s.State())
	}
}

func TestStopIsIdempotent(t *testing.T) {
	sttFake := &fakeSTT{script: func(call int) (string, error) { return "", nil }}
	s, _, _ := newDirectSession(t, sttFake, &fakeLLM{response: "Situation: x"}, 30)

	if err := s.Stop(); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	<-s.Done()
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop after close: %v", err)
	}
}

func TestStartFailsWhenCaptureUnavailable(t *testing.T) {
	rec := &recorder{}
	s := New(Config{LiveMode: true}, Deps{
		Source:    failingSource{},
		STT:       &fakeSTT{script: func(int) (string, error) { return "", nil }},
		Answers:   answer.NewService(&fakeLLM{}, nil, time.Second, testLog()),
		Publisher: rec,
		Logger:    testLog(),
	})

	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected capture failure to abort start")
	}
	if s.State() != StateIdle {
		t.Errorf("state = %v, want idle after failed start", s.State())
	}
}

func TestStartTwiceConflicts(t *testing.T) {
	sttFake := &fakeSTT{script: func(call int) (string, error) { return "", nil }}
	src := newFakeSource()
	rec := &recorder{}
	s := New(Config{LiveMode: true, ChunkInterval: time.Hour, Overlap: time.Minute}, Deps{
		Source:    src,
		STT:       sttFake,
		Answers:   answer.NewService(&fakeLLM{}, nil, time.Second, testLog()),
		Publisher: rec,
		Logger:    testLog(),
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("second Start must conflict")
	}
	_ = s.Stop()
	<-s.Done()
}

func TestRecordingModeFinalize(t *testing.T) {
	sttFake := &fakeSTT{script: func(call int) (string, error) {
		return "Tell me about a time you led a team. We shipped the migration.", nil
	}}
	llmFake := &fakeLLM{response: "Situation: led the team.\nResult: shipped."}
	src := newFakeSource()
	rec := &recorder{}
	up := &fakeUploader{}
	store, err := transcript.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	s := New(Config{
		LiveMode:   false,
		StopGrace:  time.Second,
		SampleRate: 16000,
		Channels:   1,
	}, Deps{
		Source:      src,
		STT:         sttFake,
		Answers:     answer.NewService(llmFake, nil, time.Second, testLog()),
		Recordings:  up,
		Transcripts: store,
		Publisher:   rec,
		Logger:      testLog(),
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	src.frames <- make([]int16, 16000) // one second of audio
	time.Sleep(20 * time.Millisecond)

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case <-s.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("session did not close")
	}

	// No chunk scheduler ran in plain recording mode.
	if got := rec.count(EventLiveTranscript); got != 0 {
		t.Errorf("live_transcript events = %d, want 0", got)
	}

	done := rec.waitFor(t, EventRecordingComplete, time.Second)
	p := done.payload.(RecordingCompletePayload)
	if !strings.HasPrefix(p.Filename, "meeting_") || !strings.HasSuffix(p.Filename, ".wav") {
		t.Errorf("filename = %q", p.Filename)
	}
	// One second of buffered audio, regardless of how long the session was
	// open on the wall clock.
	if p.Duration != 1.0 {
		t.Errorf("duration = %v, want 1.0 (buffered audio length)", p.Duration)
	}
	if p.Filepath != "/recordings/"+p.Filename {
		t.Errorf("filepath = %q", p.Filepath)
	}

	up.mu.Lock()
	uploads, size := len(up.names), up.bytes
	up.mu.Unlock()
	if uploads != 1 {
		t.Fatalf("uploads = %d, want 1", uploads)
	}
	if size != 44+16000*2 {
		t.Errorf("uploaded WAV size = %d, want %d", size, 44+16000*2)
	}

	tc := rec.waitFor(t, EventTranscriptionComplete, time.Second)
	tp := tc.payload.(TranscriptionCompletePayload)
	if len(tp.QuestionsDetected) != 1 {
		t.Errorf("questions_detected = %v, want one", tp.QuestionsDetected)
	}
	if got := rec.count(EventAutoAnswer); got != 1 {
		t.Errorf("auto_answer events = %d, want 1", got)
	}
}

// End-to-end over real timers, scaled down: duration 250ms, interval 100ms,
// overlap 20ms gives exactly two scheduled ticks before the countdown stops
// the session.
func TestLiveSessionEndToEnd(t *testing.T) {
	sttFake := &fakeSTT{script: func(call int) (string, error) {
		if call == 1 {
			return "Tell me about a time you led a team.", nil
		}
		return "We talked through the rollout plan.", nil
	}}
	llmFake := &fakeLLM{response: "Situation: led the team.\nResult: shipped on time."}
	src := newFakeSource()
	rec := &recorder{}

	s := New(Config{
		LiveMode:      true,
		Duration:      250 * time.Millisecond,
		ChunkInterval: 100 * time.Millisecond,
		Overlap:       20 * time.Millisecond,
		MinChunk:      time.Nanosecond,
		StopGrace:     500 * time.Millisecond,
		SampleRate:    16000,
		Channels:      1,
	}, Deps{
		Source:    src,
		STT:       sttFake,
		Answers:   answer.NewService(llmFake, nil, time.Second, testLog()),
		Publisher: rec,
		Logger:    testLog(),
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Preload plenty of audio so every window has samples.
	src.frames <- make([]int16, 16000*10)

	select {
	case <-s.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("session did not close on its own")
	}

	if got := rec.count(EventLiveTranscript); got != 2 {
		t.Errorf("live_transcript events = %d, want 2", got)
	}
	if got := rec.count(EventQuestionDetected); got != 1 {
		t.Errorf("question_detected events = %d, want 1", got)
	}
	if got := rec.count(EventLiveSessionComplete); got != 1 {
		t.Fatalf("live_session_complete events = %d, want 1", got)
	}

	for _, e := range rec.all() {
		if e.name == EventLiveSessionComplete {
			p := e.payload.(LiveSessionCompletePayload)
			if p.Statistics.ChunksProcessed != 2 {
				t.Errorf("statistics.chunks_processed = %d, want 2", p.Statistics.ChunksProcessed)
			}
			if p.Statistics.QuestionsDetected != 1 {
				t.Errorf("statistics.questions_detected = %d, want 1", p.Statistics.QuestionsDetected)
			}
			if !strings.Contains(p.FullTranscript, "rollout plan") {
				t.Errorf("full transcript = %q", p.FullTranscript)
			}
		}
	}
}
