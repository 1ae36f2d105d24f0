package dreamina

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/dreamgate/dreamgate/internal/extract"
	"github.com/dreamgate/dreamgate/internal/polling"
	"github.com/dreamgate/dreamgate/internal/region"
	"github.com/dreamgate/dreamgate/internal/upload"
)

// uploader is the slice of the upload pipeline the service uses; tests
// substitute it.
type uploader interface {
	UploadImage(ctx context.Context, data []byte) (upload.Reference, error)
}

// ServiceConfig wires the generation service.
type ServiceConfig struct {
	Client *Client
	// UploadHTTPClient serves the binary transfer calls; it needs a longer
	// timeout than the API client.
	UploadHTTPClient *http.Client
	// TokenPerMinute caps upload-session acquisitions across all requests.
	TokenPerMinute int
	Polling        polling.Config
	// InitialDelay is the grace period between submitting a job and the
	// first status query.
	InitialDelay time.Duration
	// Upload host overrides, for tests.
	ImageXHost string
	VODHost    string
}

// Service orchestrates generation jobs end to end: credit check, frame
// uploads, draft submission, polling, extraction. Stateless across jobs.
type Service struct {
	client       *Client
	logger       *slog.Logger
	limiter      *rate.Limiter
	uploadHTTP   *http.Client
	pollCfg      polling.Config
	initialDelay time.Duration
	imagexHost   string
	vodHost      string

	newUploader func(info region.Info, token upload.TokenFunc) uploader
}

// NewService creates the generation service.
func NewService(log *slog.Logger, cfg ServiceConfig) *Service {
	if log == nil {
		log = slog.Default()
	}
	perMinute := cfg.TokenPerMinute
	if perMinute <= 0 {
		perMinute = 30
	}
	delay := cfg.InitialDelay
	if delay < 0 {
		delay = 0
	}
	s := &Service{
		client:       cfg.Client,
		logger:       log.With(slog.String("service", "generate")),
		limiter:      rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute),
		uploadHTTP:   cfg.UploadHTTPClient,
		pollCfg:      cfg.Polling,
		initialDelay: delay,
		imagexHost:   cfg.ImageXHost,
		vodHost:      cfg.VODHost,
	}
	s.newUploader = func(info region.Info, token upload.TokenFunc) uploader {
		return upload.NewPipeline(log, upload.Config{
			Region:     info,
			Token:      token,
			HTTPClient: s.uploadHTTP,
			Limiter:    s.limiter,
			ImageXHost: s.imagexHost,
			VODHost:    s.vodHost,
		})
	}
	return s
}

// VideoRequest is one video generation job.
type VideoRequest struct {
	Model      string
	Prompt     string
	Ratio      string
	Resolution string
	DurationS  int
	// Frames are raw image bytes for the first and optional last frame.
	// They take priority over FrameURLs.
	Frames [][]byte
	// FrameURLs are remote images to download and upload as frames.
	FrameURLs []string
}

// GenerateVideo runs one video job and returns the final media URL.
// Frame uploads happen strictly before submission; a failed first frame
// aborts the job, a failed second frame degrades to single-frame mode.
func (s *Service) GenerateVideo(ctx context.Context, token string, req VideoRequest) (string, error) {
	info := region.FromToken(token)
	model := ResolveVideoModel(req.Model, info)
	duration := resolveVideoDuration(model, req.DurationS)
	ratio := req.Ratio
	if ratio == "" {
		ratio = "1:1"
	}
	resolution := req.Resolution
	if resolution == "" {
		resolution = "720p"
	}

	s.logger.Info("video generation requested",
		slog.String("model", req.Model),
		slog.String("model_req_key", model),
		slog.Int("duration_s", duration),
		slog.String("region", info.Code()))

	if err := s.client.ensureCredit(ctx, token); err != nil {
		return "", err
	}

	uris, err := s.uploadFrames(ctx, info, token, req.Frames, req.FrameURLs)
	if err != nil {
		return "", err
	}

	body, submitID := BuildVideoDraft(VideoDraftOptions{
		UserModel:  req.Model,
		Model:      model,
		Prompt:     req.Prompt,
		Ratio:      ratio,
		Resolution: resolution,
		DurationS:  duration,
		FrameURIs:  uris,
		Region:     info,
	})
	historyID, err := s.client.SubmitDraft(ctx, token, body)
	if err != nil {
		return "", err
	}
	s.logger.Info("video job submitted",
		slog.String("history_id", historyID),
		slog.String("submit_id", submitID))

	snapshot, err := s.await(ctx, token, historyID, 1, true)
	if err != nil {
		return "", err
	}

	items := itemsFromPayload(snapshot.Payload)
	var videoURL string
	var itemID string
	if len(items) > 0 {
		videoURL = extract.VideoURL(items[0])
		itemID = extract.ItemID(items[0])
	}
	if videoURL == "" {
		if raw, err := json.Marshal(snapshot.Payload); err == nil {
			videoURL = extract.VideoURLFromRaw(raw)
		}
	}
	if videoURL == "" {
		return "", fmt.Errorf("job %s finished without a video url", historyID)
	}

	return s.client.HighQualityVideoURL(ctx, token, itemID, videoURL), nil
}

// ImageRequest is one image generation job.
type ImageRequest struct {
	Model            string
	Prompt           string
	NegativePrompt   string
	Ratio            string
	Resolution       string
	Seed             int
	SampleStrength   float64
	IntelligentRatio bool
	// Images are raw input image bytes; non-empty switches to blend mode.
	Images [][]byte
}

// GenerateImages runs one image job and returns the result URLs.
func (s *Service) GenerateImages(ctx context.Context, token string, req ImageRequest) ([]string, error) {
	info := region.FromToken(token)
	model := ResolveImageModel(req.Model, info)
	userModel := req.Model
	if userModel == "" {
		userModel = DefaultImageModel
	}

	res, err := ResolveResolution(userModel, info, req.Resolution, req.Ratio)
	if err != nil {
		return nil, err
	}
	strength := req.SampleStrength
	if strength == 0 {
		strength = 0.5
	}

	s.logger.Info("image generation requested",
		slog.String("model", userModel),
		slog.String("model_req_key", model),
		slog.Int("inputs", len(req.Images)),
		slog.String("region", info.Code()))

	if err := s.client.ensureCredit(ctx, token); err != nil {
		return nil, err
	}

	var uris []string
	if len(req.Images) > 0 {
		up := s.newUploader(info, s.client.TokenSource(token))
		for i, data := range req.Images {
			ref, err := up.UploadImage(ctx, data)
			if err != nil {
				return nil, fmt.Errorf("upload input image %d: %w", i+1, err)
			}
			uris = append(uris, ref.URI)
		}
	}

	body, submitID := BuildImageDraft(ImageDraftOptions{
		UserModel:        userModel,
		Model:            model,
		Prompt:           req.Prompt,
		NegativePrompt:   req.NegativePrompt,
		Seed:             req.Seed,
		SampleStrength:   strength,
		Resolution:       res,
		IntelligentRatio: req.IntelligentRatio,
		ImageURIs:        uris,
		Region:           info,
	})
	historyID, err := s.client.SubmitDraft(ctx, token, body)
	if err != nil {
		return nil, err
	}
	s.logger.Info("image job submitted",
		slog.String("history_id", historyID),
		slog.String("submit_id", submitID))

	// Text-to-image produces a batch of four; blend produces one.
	expected := 4
	if len(uris) > 0 {
		expected = 1
	}
	snapshot, err := s.await(ctx, token, historyID, expected, false)
	if err != nil {
		return nil, err
	}

	urls := extract.ImageURLs(itemsFromPayload(snapshot.Payload))
	if len(urls) == 0 {
		return nil, fmt.Errorf("job %s finished without image urls", historyID)
	}
	return urls, nil
}

// uploadFrames uploads up to two frame images, preferring raw bytes over
// URLs. The first frame is mandatory once any input was given.
func (s *Service) uploadFrames(ctx context.Context, info region.Info, token string, frames [][]byte, urls []string) ([]string, error) {
	var inputs [][]byte
	if len(frames) > 0 {
		inputs = frames
	} else {
		for _, u := range urls {
			if u == "" {
				continue
			}
			data, err := s.fetchFile(ctx, u)
			if err != nil {
				if len(inputs) == 0 {
					return nil, fmt.Errorf("download first frame: %w", err)
				}
				s.logger.Warn("last frame download failed, continuing without it",
					slog.String("url", u), slog.Any("error", err))
				continue
			}
			inputs = append(inputs, data)
		}
	}
	if len(inputs) > 2 {
		inputs = inputs[:2]
	}
	if len(inputs) == 0 {
		return nil, nil
	}

	up := s.newUploader(info, s.client.TokenSource(token))
	var uris []string
	for i, data := range inputs {
		ref, err := up.UploadImage(ctx, data)
		if err != nil {
			if i == 0 {
				return nil, fmt.Errorf("upload first frame: %w", err)
			}
			s.logger.Warn("last frame upload failed, continuing without it", slog.Any("error", err))
			break
		}
		uris = append(uris, ref.URI)
	}
	return uris, nil
}

// await waits the grace period, then polls the history record to completion.
func (s *Service) await(ctx context.Context, token, historyID string, expected int, video bool) (polling.Snapshot, error) {
	if s.initialDelay > 0 {
		timer := time.NewTimer(s.initialDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return polling.Snapshot{}, ctx.Err()
		case <-timer.C:
		}
	}

	cfg := s.pollCfg
	cfg.ExpectedItems = expected
	poller := polling.New(s.logger, cfg)
	result, err := poller.Poll(ctx, s.client.HistoryFetch(token, historyID, video))
	if err != nil {
		return polling.Snapshot{}, err
	}
	s.logger.Info("job finished",
		slog.String("history_id", historyID),
		slog.Int("attempts", result.Attempts),
		slog.Duration("elapsed", result.Elapsed),
		slog.Bool("stabilized", result.Stabilized))
	return result.Snapshot, nil
}

// FetchFileBase64 downloads a media URL, for b64_json responses.
func (s *Service) FetchFileBase64(ctx context.Context, url string) ([]byte, error) {
	return s.fetchFile(ctx, url)
}

func (s *Service) fetchFile(ctx context.Context, url string) ([]byte, error) {
	client := s.uploadHTTP
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: http %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func itemsFromPayload(payload map[string]any) []map[string]any {
	if payload == nil {
		return nil
	}
	switch list := payload["item_list"].(type) {
	case []map[string]any:
		return list
	case []any:
		items := make([]map[string]any, 0, len(list))
		for _, v := range list {
			if m, ok := v.(map[string]any); ok {
				items = append(items, m)
			}
		}
		return items
	default:
		return nil
	}
}
