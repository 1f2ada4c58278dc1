package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/starcoach/starcoach/config"
	"github.com/starcoach/starcoach/internal/answer"
	"github.com/starcoach/starcoach/internal/audio"
	"github.com/starcoach/starcoach/internal/providers/stt"
	"github.com/starcoach/starcoach/internal/session"
	"github.com/starcoach/starcoach/internal/star"
	"github.com/starcoach/starcoach/internal/storage"
	"github.com/starcoach/starcoach/internal/transcript"
	"github.com/starcoach/starcoach/internal/transport"
	"github.com/starcoach/starcoach/internal/utils"
)

// WSHandler owns the single websocket endpoint. Each connection gets its own
// command loop; each start_recording gets a fresh session wired to that
// connection's transport.
type WSHandler struct {
	cfg         *config.Config
	newSource   func() audio.Source
	sttc        stt.Provider
	answers     *answer.Service
	recordings  storage.Uploader
	transcripts *transcript.Store
	log         *logrus.Entry
	upgrader    websocket.Upgrader
}

func NewWSHandler(cfg *config.Config, newSource func() audio.Source, sttc stt.Provider, answers *answer.Service, recordings storage.Uploader, transcripts *transcript.Store, log *logrus.Entry) *WSHandler {
	return &WSHandler{
		cfg:         cfg,
		newSource:   newSource,
		sttc:        sttc,
		answers:     answers,
		recordings:  recordings,
		transcripts: transcripts,
		log:         log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // TODO: restrict origin in prod
		},
	}
}

func (h *WSHandler) Meeting(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote response in most cases
		return
	}

	ws := transport.NewWS(conn, h.log)
	defer ws.Close()

	var sess *session.Session

	for {
		cmd, rerr := ws.ReadCommand()
		if rerr != nil {
			break // client gone
		}

		switch cmd.Type {
		case "start_recording":
			if sess != nil && sess.State() != session.StateClosed {
				ws.Publish(session.EventError, session.ErrorPayload{Message: "already recording"})
				continue
			}
			sess = session.New(session.Config{
				Duration:      time.Duration(cmd.Duration) * time.Second,
				LiveMode:      cmd.LiveMode,
				ChunkInterval: h.cfg.ChunkInterval,
				Overlap:       h.cfg.Overlap,
				MinChunk:      h.cfg.MinChunk,
				CallTimeout:   h.cfg.CallTimeout,
				StopGrace:     h.cfg.StopGrace,
				SampleRate:    h.cfg.SampleRate,
				Channels:      h.cfg.Channels,
				Language:      h.cfg.Language,
			}, session.Deps{
				Source:      h.newSource(),
				STT:         h.sttc,
				Answers:     h.answers,
				Recordings:  h.recordings,
				Transcripts: h.transcripts,
				Publisher:   ws,
				Logger:      h.log,
			})
			if serr := sess.Start(c.Request.Context()); serr != nil {
				ws.Publish(session.EventError, session.ErrorPayload{Message: utils.Message(serr)})
				sess = nil
			}

		case "stop_recording":
			if sess == nil {
				ws.Publish(session.EventError, session.ErrorPayload{Message: "not recording"})
				continue
			}
			if serr := sess.Stop(); serr != nil {
				ws.Publish(session.EventError, session.ErrorPayload{Message: utils.Message(serr)})
			}

		case "get_answer":
			go h.getAnswer(ws, cmd)

		default:
			ws.Publish(session.EventError, session.ErrorPayload{Message: "unknown command type"})
		}
	}

	// Disconnect stops any active recording; the session keeps finalizing in
	// the background, its publishes land on a dead transport and vanish.
	if sess != nil && sess.State() == session.StateRecording {
		_ = sess.Stop()
	}
}

// getAnswer serves an explicit answer request. It runs off the command loop
// so a slow generation never blocks start/stop commands.
func (h *WSHandler) getAnswer(ws *transport.WS, cmd transport.Command) {
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.CallTimeout)
	defer cancel()

	format := cmd.Format
	if format != star.FormatFull {
		format = star.FormatBullets
	}

	ans, ms, err := h.answers.GenerateSTAR(ctx, cmd.Question, cmd.Transcript, format)
	if err != nil {
		h.log.WithError(err).WithField("question", cmd.Question).Warn("get_answer failed")
		ws.Publish(session.EventError, session.ErrorPayload{Message: utils.Message(err)})
		return
	}

	ws.Publish(session.EventAnswerReady, session.AnswerReadyPayload{
		Question:   cmd.Question,
		Answer:     ans.Format(format),
		Components: *ans,
		TimeMS:     ms,
		Provider:   h.answers.Provider(),
		FormatType: format,
	})
}
