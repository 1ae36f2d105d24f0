package handlers

import (
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/dreamgate/dreamgate/internal/dreamina"
	"github.com/dreamgate/dreamgate/internal/polling"
	"github.com/dreamgate/dreamgate/internal/upload"
)

// maxFrameFiles caps multipart image inputs: first frame plus last frame.
const maxFrameFiles = 2

var validDurations = map[int]bool{4: true, 5: true, 8: true, 10: true, 12: true}

// GenerationsHandler serves the OpenAI-style generation endpoints.
type GenerationsHandler struct {
	service *dreamina.Service
	logger  *slog.Logger
}

// NewGenerationsHandler creates the generations handler.
func NewGenerationsHandler(log *slog.Logger, service *dreamina.Service) *GenerationsHandler {
	return &GenerationsHandler{
		service: service,
		logger:  log.With(slog.String("handler", "generations")),
	}
}

// Register mounts the video and image generation routes.
func (h *GenerationsHandler) Register(e *echo.Echo) {
	e.POST("/v1/videos/generations", h.GenerateVideo)
	e.POST("/v1/images/generations", h.GenerateImages)
}

type mediaItem struct {
	URL           string `json:"url,omitempty"`
	B64JSON       string `json:"b64_json,omitempty"`
	RevisedPrompt string `json:"revised_prompt"`
}

type mediaResponse struct {
	Created int64       `json:"created"`
	Data    []mediaItem `json:"data"`
}

type videoRequest struct {
	Model          string   `json:"model" form:"model"`
	Prompt         string   `json:"prompt" form:"prompt"`
	Ratio          string   `json:"ratio" form:"ratio"`
	Resolution     string   `json:"resolution" form:"resolution"`
	Duration       int      `json:"duration" form:"duration"`
	FilePaths      []string `json:"file_paths"`
	FilePathsAlt   []string `json:"filePaths"`
	ResponseFormat string   `json:"response_format" form:"response_format"`
}

// GenerateVideo handles POST /v1/videos/generations. Accepts JSON with
// optional frame image URLs, or multipart/form-data with up to two frame
// image files (files win over URLs).
func (h *GenerationsHandler) GenerateVideo(c echo.Context) error {
	token, err := requestToken(c)
	if err != nil {
		return err
	}

	var req videoRequest
	var frames [][]byte

	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		req.Model = c.FormValue("model")
		req.Prompt = c.FormValue("prompt")
		req.Ratio = c.FormValue("ratio")
		req.Resolution = c.FormValue("resolution")
		req.ResponseFormat = c.FormValue("response_format")
		if d := c.FormValue("duration"); d != "" {
			n, err := strconv.Atoi(d)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "duration must be a number")
			}
			req.Duration = n
		}
		frames, err = formFiles(c, maxFrameFiles)
		if err != nil {
			return err
		}
	} else if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if req.Prompt == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "prompt is required")
	}
	if req.Duration != 0 && !validDurations[req.Duration] {
		return echo.NewHTTPError(http.StatusBadRequest, "duration must be one of 4, 5, 8, 10, 12")
	}
	urls := req.FilePaths
	if len(req.FilePathsAlt) > 0 {
		urls = req.FilePathsAlt
	}
	if len(urls) > maxFrameFiles {
		return echo.NewHTTPError(http.StatusBadRequest, "at most two frame images are supported")
	}

	videoURL, err := h.service.GenerateVideo(c.Request().Context(), token, dreamina.VideoRequest{
		Model:      req.Model,
		Prompt:     req.Prompt,
		Ratio:      req.Ratio,
		Resolution: req.Resolution,
		DurationS:  req.Duration,
		Frames:     frames,
		FrameURLs:  urls,
	})
	if err != nil {
		return generationError(err)
	}

	item := mediaItem{RevisedPrompt: req.Prompt}
	if req.ResponseFormat == "b64_json" {
		data, err := h.service.FetchFileBase64(c.Request().Context(), videoURL)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadGateway, "fetch generated video: "+err.Error())
		}
		item.B64JSON = base64.StdEncoding.EncodeToString(data)
	} else {
		item.URL = videoURL
	}
	return c.JSON(http.StatusOK, mediaResponse{
		Created: time.Now().Unix(),
		Data:    []mediaItem{item},
	})
}

type imageRequest struct {
	Model            string  `json:"model" form:"model"`
	Prompt           string  `json:"prompt" form:"prompt"`
	NegativePrompt   string  `json:"negative_prompt" form:"negative_prompt"`
	Ratio            string  `json:"ratio" form:"ratio"`
	Resolution       string  `json:"resolution" form:"resolution"`
	Seed             int     `json:"seed" form:"seed"`
	SampleStrength   float64 `json:"sample_strength" form:"sample_strength"`
	IntelligentRatio bool    `json:"intelligent_ratio" form:"intelligent_ratio"`
	ResponseFormat   string  `json:"response_format" form:"response_format"`
}

// GenerateImages handles POST /v1/images/generations. Multipart input
// images switch the job into blend (image-to-image) mode.
func (h *GenerationsHandler) GenerateImages(c echo.Context) error {
	token, err := requestToken(c)
	if err != nil {
		return err
	}

	var req imageRequest
	var inputs [][]byte

	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		req.Model = c.FormValue("model")
		req.Prompt = c.FormValue("prompt")
		req.NegativePrompt = c.FormValue("negative_prompt")
		req.Ratio = c.FormValue("ratio")
		req.Resolution = c.FormValue("resolution")
		req.ResponseFormat = c.FormValue("response_format")
		if s := c.FormValue("sample_strength"); s != "" {
			req.SampleStrength, _ = strconv.ParseFloat(s, 64)
		}
		inputs, err = formFiles(c, maxFrameFiles)
		if err != nil {
			return err
		}
	} else if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if req.Prompt == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "prompt is required")
	}

	urls, err := h.service.GenerateImages(c.Request().Context(), token, dreamina.ImageRequest{
		Model:            req.Model,
		Prompt:           req.Prompt,
		NegativePrompt:   req.NegativePrompt,
		Ratio:            req.Ratio,
		Resolution:       req.Resolution,
		Seed:             req.Seed,
		SampleStrength:   req.SampleStrength,
		IntelligentRatio: req.IntelligentRatio,
		Images:           inputs,
	})
	if err != nil {
		return generationError(err)
	}

	items := make([]mediaItem, 0, len(urls))
	for _, u := range urls {
		item := mediaItem{RevisedPrompt: req.Prompt}
		if req.ResponseFormat == "b64_json" {
			data, err := h.service.FetchFileBase64(c.Request().Context(), u)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadGateway, "fetch generated image: "+err.Error())
			}
			item.B64JSON = base64.StdEncoding.EncodeToString(data)
		} else {
			item.URL = u
		}
		items = append(items, item)
	}
	return c.JSON(http.StatusOK, mediaResponse{
		Created: time.Now().Unix(),
		Data:    items,
	})
}

// requestToken extracts one session token from the Authorization header,
// picking randomly when the header carries a pool.
func requestToken(c echo.Context) (string, error) {
	tokens := dreamina.TokenSplit(c.Request().Header.Get(echo.HeaderAuthorization))
	if len(tokens) == 0 {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "authorization header with a session token is required")
	}
	return dreamina.PickToken(tokens), nil
}

// formFiles reads up to limit multipart files. Field names are sorted so
// the first/last frame assignment is deterministic.
func formFiles(c echo.Context, limit int) ([][]byte, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	fields := make([]string, 0, len(form.File))
	for name := range form.File {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	var data [][]byte
	for _, name := range fields {
		for _, fh := range form.File[name] {
			if len(data) >= limit {
				return nil, echo.NewHTTPError(http.StatusBadRequest, "at most two image files are supported")
			}
			f, err := fh.Open()
			if err != nil {
				return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
			}
			raw, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
			}
			data = append(data, raw)
		}
	}
	return data, nil
}

// generationError maps pipeline and polling failures to HTTP errors while
// preserving the backend fail code.
func generationError(err error) error {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return err
	}
	var failed *polling.JobFailedError
	if errors.As(err, &failed) {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	var timeout *polling.TimeoutError
	if errors.As(err, &timeout) {
		return echo.NewHTTPError(http.StatusGatewayTimeout, err.Error())
	}
	var ue *upload.Error
	if errors.As(err, &ue) {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	var apiErr *dreamina.APIError
	if errors.As(err, &apiErr) {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
