// Package session owns the live-mode streaming pipeline: a capture pump
// feeding a rolling buffer, a fixed-cadence chunk scheduler with overlap,
// question detection with de-duplication, and per-question asynchronous
// answer generation, all published to one client through a Publisher.
package session

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/starcoach/starcoach/internal/answer"
	"github.com/starcoach/starcoach/internal/audio"
	"github.com/starcoach/starcoach/internal/detect"
	"github.com/starcoach/starcoach/internal/providers/stt"
	"github.com/starcoach/starcoach/internal/storage"
	"github.com/starcoach/starcoach/internal/transcript"
	"github.com/starcoach/starcoach/internal/utils"
)

type State int

const (
	StateIdle State = iota
	StateRecording
	StateStopping
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// TranscriptChunk is immutable once appended. Consecutive chunks overlap at
// the audio level; the transcribed text need not align token-for-token.
type TranscriptChunk struct {
	Seq   int
	Start time.Duration
	End   time.Duration
	Text  string
}

type AnswerState string

const (
	AnswerPending AnswerState = "pending"
	AnswerReady   AnswerState = "ready"
	AnswerFailed  AnswerState = "failed"
)

// DetectedQuestion identity is the normalized text; once recorded it is
// never re-emitted even if a later overlapping chunk matches it again.
type DetectedQuestion struct {
	Text  string
	Seq   int // first-seen chunk sequence number
	State AnswerState
}

type Config struct {
	Duration time.Duration // 0 means until explicit stop
	LiveMode bool

	ChunkInterval time.Duration // default 10s
	Overlap       time.Duration // default 2s
	MinChunk      time.Duration // skip ticks with less new audio than this
	CallTimeout   time.Duration // bound on each external call
	StopGrace     time.Duration // wait for in-flight answers at stop

	SampleRate int
	Channels   int
	Language   string
}

func (c *Config) fillDefaults() {
	if c.ChunkInterval <= 0 {
		c.ChunkInterval = 10 * time.Second
	}
	if c.Overlap < 0 || c.Overlap >= c.ChunkInterval {
		c.Overlap = 2 * time.Second
	}
	if c.MinChunk <= 0 {
		c.MinChunk = 500 * time.Millisecond
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 30 * time.Second
	}
	if c.StopGrace <= 0 {
		c.StopGrace = 5 * time.Second
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
}

// Deps are the session's collaborators. Recordings and Transcripts hold the
// artifacts of plain recording mode and may be nil in live mode.
type Deps struct {
	Source      audio.Source
	STT         stt.Provider
	Detector    detect.Detector
	Answers     *answer.Service
	Recordings  storage.Uploader
	Transcripts *transcript.Store
	Publisher   Publisher
	Logger      *logrus.Entry
}

// Session orchestrates one recording. State machine:
// idle -> recording -> stopping -> closed. Closed is final; a new recording
// needs a new Session.
type Session struct {
	ID  string
	cfg Config

	source      audio.Source
	ring        *audio.Ring
	sttc        stt.Provider
	det         detect.Detector
	answers     *answer.Service
	recordings  storage.Uploader
	transcripts *transcript.Store
	pub         Publisher
	log         *logrus.Entry

	mu        sync.Mutex
	state     State
	startedAt time.Time
	seq       int
	lastEnd   time.Duration // end of the last successfully transcribed window
	chunks    []TranscriptChunk
	full      strings.Builder
	questions map[string]*DetectedQuestion

	nowFn     func() time.Time
	cancel    context.CancelFunc
	stopCh    chan struct{}
	stopOnce  sync.Once
	runDone   chan struct{}
	closedCh  chan struct{}
	answersWG sync.WaitGroup
}

func New(cfg Config, deps Deps) *Session {
	cfg.fillDefaults()

	s := &Session{
		ID:          uuid.NewString(),
		cfg:         cfg,
		source:      deps.Source,
		sttc:        deps.STT,
		det:         deps.Detector,
		answers:     deps.Answers,
		recordings:  deps.Recordings,
		transcripts: deps.Transcripts,
		pub:         deps.Publisher,
		state:       StateIdle,
		questions:   make(map[string]*DetectedQuestion),
		nowFn:       time.Now,
		stopCh:      make(chan struct{}),
		runDone:     make(chan struct{}),
		closedCh:    make(chan struct{}),
	}
	if s.det == nil {
		s.det = detect.NewCatalog()
	}
	if deps.Logger != nil {
		s.log = deps.Logger.WithField("session_id", s.ID)
	} else {
		s.log = logrus.NewEntry(logrus.New()).WithField("session_id", s.ID)
	}
	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the session reaches the closed state.
func (s *Session) Done() <-chan struct{} { return s.closedCh }

// Start transitions idle -> recording. Capture failure is the only fatal
// error: the transition is aborted and the session stays idle.
func (s *Session) Start(ctx context.Context) error {
	const op = "Session.Start"

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return utils.E(utils.CodeConflict, op, "already recording", nil)
	}
	s.mu.Unlock()

	// Live mode only needs the scheduler's window plus slack; plain
	// recording keeps everything so the file can be saved at stop.
	retention := time.Duration(0)
	if s.cfg.LiveMode {
		retention = 3*s.cfg.ChunkInterval + s.cfg.Overlap
	}
	s.ring = audio.NewRing(s.cfg.SampleRate, s.cfg.Channels, retention)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	frames, err := s.source.Start(runCtx)
	if err != nil {
		cancel()
		return utils.E(utils.CodeUnavailable, op, "failed to start audio capture", err)
	}

	s.mu.Lock()
	s.state = StateRecording
	s.startedAt = s.nowFn()
	s.cancel = cancel
	s.mu.Unlock()

	go s.pump(frames)
	go s.run(runCtx)

	s.log.WithFields(logrus.Fields{
		"live":     s.cfg.LiveMode,
		"duration": s.cfg.Duration.Seconds(),
		"interval": s.cfg.ChunkInterval.Seconds(),
		"overlap":  s.cfg.Overlap.Seconds(),
	}).Info("session started")

	s.publish(EventStatus, StatusPayload{
		Message: fmt.Sprintf("Recording started (%.0fs)", s.cfg.Duration.Seconds()),
		Type:    "success",
	})
	return nil
}

// Stop transitions recording -> stopping and finalizes asynchronously.
func (s *Session) Stop() error {
	const op = "Session.Stop"

	s.mu.Lock()
	if s.state == StateIdle {
		s.mu.Unlock()
		return utils.E(utils.CodeConflict, op, "not recording", nil)
	}
	if s.state != StateRecording {
		s.mu.Unlock()
		return nil // stop is idempotent once stopping/closed
	}
	s.state = StateStopping
	s.mu.Unlock()

	s.stopOnce.Do(func() {
		close(s.stopCh)
		go s.finalize()
	})
	return nil
}

// pump moves captured frames into the ring buffer until the source ends.
func (s *Session) pump(frames <-chan []int16) {
	for f := range frames {
		s.ring.Append(f)
	}
}

// run drives the chunk schedule and the progress countdown. It is the only
// goroutine that processes chunks, so transcript events keep sequence order.
func (s *Session) run(ctx context.Context) {
	defer close(s.runDone)

	progress := time.NewTicker(time.Second)
	defer progress.Stop()

	var chunkC <-chan time.Time
	if s.cfg.LiveMode {
		t := time.NewTicker(s.cfg.ChunkInterval)
		defer t.Stop()
		chunkC = t.C
	}

	var deadline <-chan time.Time
	if s.cfg.Duration > 0 {
		timer := time.NewTimer(s.cfg.Duration)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-progress.C:
			s.publish(EventRecordingProgress, RecordingProgressPayload{
				Elapsed:  int(s.elapsed().Seconds()),
				Duration: int(s.cfg.Duration.Seconds()),
			})
		case <-deadline:
			s.publish(EventStatus, StatusPayload{Message: "Recording duration reached", Type: "info"})
			go func() { _ = s.Stop() }()
			deadline = nil
		case <-chunkC:
			s.processChunk(ctx)
		}
	}
}

func (s *Session) elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nowFn().Sub(s.startedAt)
}

// processChunk runs one scheduler tick: slice the overlap window, transcribe
// it, publish the transcript, and fan detected questions out to answer
// generation. A failed tick leaves the success boundary where it was, so the
// next window re-covers the audio and nothing is silently dropped.
func (s *Session) processChunk(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return
	}
	seq := s.seq + 1
	start := s.lastEnd
	if start > 0 {
		start -= s.cfg.Overlap
		if start < 0 {
			start = 0
		}
	}
	end := s.nowFn().Sub(s.startedAt)
	newAudio := end - s.lastEnd
	s.mu.Unlock()

	log := s.log.WithFields(logrus.Fields{"chunk": seq, "window_start": start.Seconds(), "window_end": end.Seconds()})

	if newAudio < s.cfg.MinChunk {
		log.Debug("skipping near-empty tick")
		return
	}
	samples := s.ring.Slice(start, end)
	if len(samples) == 0 {
		log.Debug("no buffered audio for window")
		return
	}

	wav := audio.EncodeWAV(samples, s.cfg.SampleRate, s.cfg.Channels)

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CallTimeout)
	text, conf, err := s.sttc.Transcribe(cctx, wav, s.cfg.Language)
	cancel()
	if err != nil {
		log.WithError(err).Warn("chunk transcription failed")
		s.publish(EventError, ErrorPayload{Message: fmt.Sprintf("transcription failed for chunk %d", seq)})
		return
	}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.seq = seq
	s.lastEnd = end

	text = strings.TrimSpace(text)
	if text == "" {
		s.mu.Unlock()
		log.Debug("empty transcription, boundary advanced")
		return
	}

	s.chunks = append(s.chunks, TranscriptChunk{Seq: seq, Start: start, End: end, Text: text})
	if s.full.Len() > 0 {
		s.full.WriteString(" ")
	}
	s.full.WriteString(text)
	fullText := s.full.String()
	s.mu.Unlock()

	log.WithField("confidence", conf).Debug("chunk transcribed")
	s.publish(EventLiveTranscript, LiveTranscriptPayload{Chunk: text, Full: fullText})

	for _, q := range s.det.Extract(text) {
		norm := detect.Normalize(q)

		s.mu.Lock()
		if s.state == StateClosed {
			s.mu.Unlock()
			return
		}
		if _, dup := s.questions[norm]; dup {
			s.mu.Unlock()
			continue
		}
		s.questions[norm] = &DetectedQuestion{Text: q, Seq: seq, State: AnswerPending}
		s.mu.Unlock()

		// Detected is published before generation starts, so it always
		// precedes the answer event for this question.
		s.publish(EventQuestionDetected, QuestionDetectedPayload{Question: q})

		s.answersWG.Add(1)
		go s.generateLiveAnswer(q, norm, fullText)
	}
}

// generateLiveAnswer runs detached from the session context: stopping the
// session does not cancel in-flight calls, their results are just discarded
// once the session is closed.
func (s *Session) generateLiveAnswer(question, norm, transcript string) {
	defer s.answersWG.Done()

	text, ms, err := s.answers.Quick(context.Background(), question, transcript)

	s.mu.Lock()
	if dq := s.questions[norm]; dq != nil {
		if err != nil {
			dq.State = AnswerFailed
		} else {
			dq.State = AnswerReady
		}
	}
	closed := s.state == StateClosed
	s.mu.Unlock()

	if closed {
		s.log.WithField("question", question).Debug("discarding answer after close")
		return
	}
	if err != nil {
		s.log.WithError(err).WithField("question", question).Warn("live answer failed")
		s.publish(EventError, ErrorPayload{Message: fmt.Sprintf("failed to generate answer for: %s", question)})
		return
	}
	s.publish(EventLiveAnswer, LiveAnswerPayload{Question: question, Answer: text, TimeMS: ms})
}

// finalize drains the pipeline after stop: waits out the run loop, settles
// in-flight work within the grace period, emits the terminal event, and
// closes the session. Nothing is published once state reaches closed.
func (s *Session) finalize() {
	<-s.runDone
	_ = s.source.Close()

	if s.cfg.LiveMode {
		s.finalizeLive()
	} else {
		s.finalizeRecording()
	}

	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
	close(s.closedCh)

	if s.cancel != nil {
		s.cancel()
	}
	s.log.Info("session closed")
}

func (s *Session) finalizeLive() {
	s.waitAnswers()

	s.mu.Lock()
	payload := LiveSessionCompletePayload{
		FullTranscript: s.full.String(),
		Statistics: Statistics{
			ChunksProcessed:       len(s.chunks),
			QuestionsDetected:     len(s.questions),
			DurationSeconds:       s.nowFn().Sub(s.startedAt).Seconds(),
			TotalTranscriptLength: s.full.Len(),
		},
	}
	s.mu.Unlock()

	s.publish(EventLiveSessionComplete, payload)
}

func (s *Session) finalizeRecording() {
	// Capture may lag the wall clock; the recording's length is whatever
	// audio actually reached the buffer.
	recorded := s.ring.Duration()
	samples := s.ring.Slice(0, recorded)
	if len(samples) == 0 {
		s.publish(EventError, ErrorPayload{Message: "no audio data recorded"})
		return
	}

	s.publish(EventStatus, StatusPayload{Message: "Processing audio...", Type: "info"})

	wav := audio.EncodeWAV(samples, s.cfg.SampleRate, s.cfg.Channels)
	filename := fmt.Sprintf("meeting_%s.wav", s.startedAt.Format("20060102_150405"))

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CallTimeout)
	defer cancel()

	storedPath := ""
	if s.recordings != nil {
		path, err := s.recordings.Upload(ctx, filename, "audio/wav", bytes.NewReader(wav))
		if err != nil {
			s.log.WithError(err).Error("failed to store recording")
			s.publish(EventError, ErrorPayload{Message: "failed to store recording"})
		} else {
			storedPath = path
		}
	}
	s.publish(EventRecordingComplete, RecordingCompletePayload{
		Filename: filename,
		Filepath: storedPath,
		Duration: recorded.Seconds(),
	})

	s.publish(EventStatus, StatusPayload{Message: "Transcribing audio...", Type: "info"})

	// Whole-recording transcription gets more headroom than a 10s chunk.
	tctx, tcancel := context.WithTimeout(context.Background(), 4*s.cfg.CallTimeout)
	defer tcancel()

	start := s.nowFn()
	text, _, err := s.sttc.Transcribe(tctx, wav, s.cfg.Language)
	if err != nil {
		s.log.WithError(err).Error("transcription failed")
		s.publish(EventError, ErrorPayload{Message: "Transcription failed"})
		return
	}
	text = strings.TrimSpace(text)

	questions := s.det.Extract(text)
	s.publish(EventTranscriptionComplete, TranscriptionCompletePayload{
		Text:              text,
		TimeMS:            s.nowFn().Sub(start).Milliseconds(),
		QuestionsDetected: questions,
	})

	if s.transcripts != nil && text != "" {
		if path, werr := s.transcripts.Save(filename, text); werr != nil {
			s.log.WithError(werr).Warn("failed to save transcript")
		} else {
			s.log.WithField("path", path).Info("transcript saved")
		}
	}

	for _, q := range questions {
		norm := detect.Normalize(q)
		s.mu.Lock()
		if _, dup := s.questions[norm]; dup {
			s.mu.Unlock()
			continue
		}
		s.questions[norm] = &DetectedQuestion{Text: q, State: AnswerPending}
		s.mu.Unlock()

		q := q
		s.answersWG.Add(1)
		go func() {
			defer s.answersWG.Done()
			answerText, ms, err := s.answers.Quick(context.Background(), q, text)

			s.mu.Lock()
			dq := s.questions[detect.Normalize(q)]
			if err != nil {
				dq.State = AnswerFailed
			} else {
				dq.State = AnswerReady
			}
			closed := s.state == StateClosed
			s.mu.Unlock()

			if closed {
				return
			}
			if err != nil {
				s.publish(EventError, ErrorPayload{Message: fmt.Sprintf("failed to generate answer for: %s", q)})
				return
			}
			s.publish(EventAutoAnswer, AutoAnswerPayload{Question: q, Answer: answerText, TimeMS: ms})
		}()
	}
	s.waitAnswers()
}

// waitAnswers blocks until in-flight answer calls settle or the grace period
// elapses, whichever comes first.
func (s *Session) waitAnswers() {
	done := make(chan struct{})
	go func() {
		s.answersWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.cfg.StopGrace):
		s.log.Warn("grace period elapsed with answers still in flight")
	}
}

// publish gates every outbound event on the closed state.
func (s *Session) publish(event string, payload any) {
	s.mu.Lock()
	closed := s.state == StateClosed
	s.mu.Unlock()
	if closed || s.pub == nil {
		return
	}
	s.pub.Publish(event, payload)
}
