package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/starcoach/starcoach/internal/answer"
	"github.com/starcoach/starcoach/internal/star"
	"github.com/starcoach/starcoach/internal/utils"
)

// AnswerHandler is the REST twin of the websocket get_answer command, for
// clients that only need one-shot answer generation.
type AnswerHandler struct {
	answers *answer.Service
	log     *logrus.Entry
}

func NewAnswerHandler(answers *answer.Service, log *logrus.Entry) *AnswerHandler {
	return &AnswerHandler{answers: answers, log: log}
}

type answerRequest struct {
	Question   string `json:"question" binding:"required"`
	Transcript string `json:"transcript" binding:"required"`
	Format     string `json:"format"` // bullets|full
}

type answerResponse struct {
	Question   string      `json:"question"`
	Answer     string      `json:"answer"`
	Components star.Answer `json:"components"`
	TimeMS     int64       `json:"time_ms"`
	Provider   string      `json:"provider"`
	FormatType string      `json:"format_type"`
}

func (h *AnswerHandler) Generate(c *gin.Context) {
	const op = "AnswerHandler.Generate"

	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "question and transcript required", err))
		return
	}
	format := req.Format
	if format != star.FormatFull {
		format = star.FormatBullets
	}

	ans, ms, err := h.answers.GenerateSTAR(c.Request.Context(), req.Question, req.Transcript, format)
	if err != nil {
		h.log.WithError(err).Warn("answer generation failed")
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, answerResponse{
		Question:   req.Question,
		Answer:     ans.Format(format),
		Components: *ans,
		TimeMS:     ms,
		Provider:   h.answers.Provider(),
		FormatType: format,
	})
}
