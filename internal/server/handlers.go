package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/mfenderov/pagechat/internal/chat"
	"github.com/mfenderov/pagechat/internal/sessionkey"
	"github.com/mfenderov/pagechat/internal/submission"
	"github.com/mfenderov/pagechat/internal/urlcanon"
	"github.com/mfenderov/pagechat/pkg/models"
)

// User-facing alerts.
const (
	alertInvalidURL = "Please enter a valid URL"
	alertUpstream   = "An error occurred while processing the URL"
	alertBusy       = "A submission is already in progress"
)

// pageData feeds templates/index.html.
type pageData struct {
	Input       string // value of the URL field
	Alert       string
	PageURL     string // canonical URL of the open chat, empty before a submission
	Skipped     bool
	Messages    []models.Message
	Busy        bool
	ChatEnabled bool
}

// submissionStatus maps a submission error to an HTTP status and alert.
func submissionStatus(err error) (int, string) {
	var subErr *submission.Error
	if errors.As(err, &subErr) {
		switch subErr.Kind {
		case submission.KindInvalidInput:
			return http.StatusBadRequest, alertInvalidURL
		case submission.KindBusy:
			return http.StatusConflict, alertBusy
		}
	}
	return http.StatusBadGateway, alertUpstream
}

func (s *Server) indexPage(c echo.Context) error {
	return c.Render(http.StatusOK, "index.html", pageData{
		Busy:        s.deps.Submitter.InFlight(sessionToken(c)),
		ChatEnabled: s.deps.Chat != nil,
	})
}

func (s *Server) submitForm(c echo.Context) error {
	input := c.FormValue("url")
	token := sessionToken(c)

	res, err := s.deps.Submitter.Submit(c.Request().Context(), input, token)
	if err != nil {
		code, alert := submissionStatus(err)
		return c.Render(code, "index.html", pageData{
			Input:       input,
			Alert:       alert,
			Busy:        s.deps.Submitter.InFlight(token),
			ChatEnabled: s.deps.Chat != nil,
		})
	}

	data := pageData{
		PageURL:     res.CanonicalURL,
		Skipped:     res.Skipped,
		Messages:    res.Messages,
		ChatEnabled: s.deps.Chat != nil,
	}
	if !res.ClearInput {
		data.Input = input
	}
	return c.Render(http.StatusOK, "index.html", data)
}

type submitRequest struct {
	URL string `json:"url" form:"url"`
}

type submitResponse struct {
	CanonicalURL string           `json:"canonical_url"`
	SessionID    string           `json:"session_id"`
	Skipped      bool             `json:"skipped"`
	Messages     []models.Message `json:"messages"`
}

func (s *Server) submitAPI(c echo.Context) error {
	var req submitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	res, err := s.deps.Submitter.Submit(c.Request().Context(), req.URL, sessionToken(c))
	if err != nil {
		code, alert := submissionStatus(err)
		return echo.NewHTTPError(code, alert).SetInternal(err)
	}

	return c.JSON(http.StatusOK, submitResponse{
		CanonicalURL: res.CanonicalURL,
		SessionID:    res.SessionKey,
		Skipped:      res.Skipped,
		Messages:     res.Messages,
	})
}

// sessionFor derives the session key for a raw page URL and the caller's token.
func sessionFor(c echo.Context, rawURL string) (canonical, key string, err error) {
	canonical, err = urlcanon.Reconstruct(rawURL)
	if err != nil {
		return "", "", echo.NewHTTPError(http.StatusBadRequest, alertInvalidURL).SetInternal(err)
	}
	return canonical, sessionkey.Derive(canonical, sessionToken(c)), nil
}

func (s *Server) historyAPI(c echo.Context) error {
	_, key, err := sessionFor(c, c.QueryParam("url"))
	if err != nil {
		return err
	}

	msgs, err := s.deps.History.GetMessages(c.Request().Context(), key, submission.HistoryAmount)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "failed to load history").SetInternal(err)
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return c.JSON(http.StatusOK, msgs)
}

type chatRequest struct {
	URL     string `json:"url"`
	Message string `json:"message"`
}

func (s *Server) chatAPI(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		s.metrics.observeChat(chatInvalid)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Message) == "" {
		s.metrics.observeChat(chatInvalid)
		return echo.NewHTTPError(http.StatusBadRequest, "message must not be empty")
	}

	canonical, key, err := sessionFor(c, req.URL)
	if err != nil {
		s.metrics.observeChat(chatInvalid)
		return err
	}

	ans, err := s.deps.Chat.Chat(c.Request().Context(), key, canonical, req.Message)
	if err != nil {
		if errors.Is(err, chat.ErrEmptyQuestion) {
			s.metrics.observeChat(chatInvalid)
			return echo.NewHTTPError(http.StatusBadRequest, "message must not be empty")
		}
		s.metrics.observeChat(chatError)
		return echo.NewHTTPError(http.StatusBadGateway, "failed to answer").SetInternal(err)
	}

	s.metrics.observeChat(chatOK)
	return c.JSON(http.StatusOK, ans)
}
