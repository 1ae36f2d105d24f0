// Package dreamina is the client for the vendor's regional mweb and
// commerce APIs plus the generation orchestration built on top of it. All
// calls authenticate with an opaque session token passed through verbatim;
// the token's site prefix selects the regional deployment.
package dreamina

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/dreamgate/dreamgate/internal/extract"
	"github.com/dreamgate/dreamgate/internal/polling"
	"github.com/dreamgate/dreamgate/internal/region"
	"github.com/dreamgate/dreamgate/internal/upload"
)

// Request-level constants the web client declares on every call.
const (
	platformCode = "7"
	versionCode  = "8.4.0"
	webVersion   = "7.5.0"
	userAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/132.0.0.0 Safari/537.36"
)

// TokenSplit extracts the comma-separated session tokens from an
// Authorization header value. Only a proper "Bearer " scheme prefix is
// stripped; a bare token that happens to start with "Bearer" stays intact.
func TokenSplit(authorization string) []string {
	value := strings.TrimSpace(authorization)
	if after, ok := strings.CutPrefix(value, "Bearer "); ok {
		value = strings.TrimSpace(after)
	}
	parts := strings.Split(value, ",")
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// PickToken selects one token at random, spreading load across the pool.
func PickToken(tokens []string) string {
	if len(tokens) == 0 {
		return ""
	}
	return tokens[rand.IntN(len(tokens))]
}

// APIError is a vendor mweb error envelope (non-zero ret).
type APIError struct {
	Ret     string
	Message string
	Path    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend %s returned ret=%s: %s", e.Path, e.Ret, e.Message)
}

// ClientConfig wires one Client. BaseURL and CommerceURL override the
// regional hosts, for tests.
type ClientConfig struct {
	HTTPClient  *http.Client
	BaseURL     string
	CommerceURL string
}

// Client talks to the vendor APIs. Stateless; a single instance serves all
// tokens and regions concurrently.
type Client struct {
	http        *http.Client
	logger      *slog.Logger
	baseURL     string
	commerceURL string
}

// NewClient creates a vendor API client.
func NewClient(log *slog.Logger, cfg ClientConfig) *Client {
	if log == nil {
		log = slog.Default()
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		http:        client,
		logger:      log.With(slog.String("service", "dreamina")),
		baseURL:     cfg.BaseURL,
		commerceURL: cfg.CommerceURL,
	}
}

func (c *Client) base(info region.Info) string {
	if c.baseURL != "" {
		return c.baseURL
	}
	return info.BaseURL()
}

func (c *Client) commerce(info region.Info) string {
	if c.commerceURL != "" {
		return c.commerceURL
	}
	return info.CommerceURL()
}

type envelope struct {
	Ret    string          `json:"ret"`
	ErrMsg string          `json:"errmsg"`
	Data   json.RawMessage `json:"data"`
}

// post sends one authenticated mweb call and returns the data member. The
// region prefix is stripped from the token before it goes on the wire.
func (c *Client) post(ctx context.Context, host, token, path string, params url.Values, body any) (json.RawMessage, error) {
	raw, err := c.postRaw(ctx, host, token, path, params, body)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", path, err)
	}
	if env.Ret != "" && env.Ret != "0" {
		return nil, &APIError{Ret: env.Ret, Message: env.ErrMsg, Path: path}
	}
	return env.Data, nil
}

// postRaw sends the call and returns the body verbatim, for callers that
// need to scan the raw payload.
func (c *Client) postRaw(ctx context.Context, host, token, path string, params url.Values, body any) ([]byte, error) {
	info := region.FromToken(token)
	bare := region.StripPrefix(token)

	if params == nil {
		params = url.Values{}
	}
	params.Set("aid", fmt.Sprint(info.AssistantID()))
	params.Set("device_platform", "web")
	params.Set("region", info.Code())
	params.Set("webVersion", webVersion)

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, host+path+"?"+params.Encode(), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Origin", info.Origin())
	req.Header.Set("Referer", info.Origin()+"/ai-tool/generate")
	req.Header.Set("App-Sdk-Version", versionCode)
	req.Header.Set("Appid", fmt.Sprint(info.AssistantID()))
	req.Header.Set("Appvr", versionCode)
	req.Header.Set("Pf", platformCode)
	req.Header.Set("Cookie", fmt.Sprintf("sessionid=%s; sessionid_ss=%s", bare, bare))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("backend %s returned http %d", path, resp.StatusCode)
	}
	return raw, nil
}

type uploadTokenData struct {
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	SessionToken    string `json:"session_token"`
	ServiceID       string `json:"service_id"`
	SpaceName       string `json:"space_name"`
}

// UploadToken acquires a single-use upload session for the scene. The
// mainland response carries a service id, the international ones a space
// name; both land in Session.ServiceID.
func (c *Client) UploadToken(ctx context.Context, token string, scene int) (upload.Session, error) {
	info := region.FromToken(token)
	data, err := c.post(ctx, c.base(info), token, "/mweb/v1/get_upload_token", nil, map[string]any{
		"scene": scene,
	})
	if err != nil {
		return upload.Session{}, err
	}
	var td uploadTokenData
	if err := json.Unmarshal(data, &td); err != nil {
		return upload.Session{}, fmt.Errorf("decode upload token: %w", err)
	}
	serviceID := td.ServiceID
	if info.IsInternational {
		serviceID = td.SpaceName
	}
	return upload.Session{
		AccessKeyID:     td.AccessKeyID,
		SecretAccessKey: td.SecretAccessKey,
		SessionToken:    td.SessionToken,
		ServiceID:       serviceID,
	}, nil
}

// TokenSource adapts UploadToken for one session token into the pipeline's
// token callback.
func (c *Client) TokenSource(token string) upload.TokenFunc {
	return func(ctx context.Context, scene int) (upload.Session, error) {
		return c.UploadToken(ctx, token, scene)
	}
}

type generateData struct {
	AigcData struct {
		HistoryRecordID string `json:"history_record_id"`
	} `json:"aigc_data"`
}

// SubmitDraft submits a generation job and returns the history record id to
// poll on.
func (c *Client) SubmitDraft(ctx context.Context, token string, body map[string]any) (string, error) {
	info := region.FromToken(token)
	params := url.Values{}
	params.Set("aigc_features", "app_lip_sync")
	params.Set("web_version", webVersion)
	params.Set("da_version", draftVersion)

	data, err := c.post(ctx, c.base(info), token, "/mweb/v1/aigc_draft/generate", params, body)
	if err != nil {
		return "", err
	}
	var gd generateData
	if err := json.Unmarshal(data, &gd); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}
	if gd.AigcData.HistoryRecordID == "" {
		return "", fmt.Errorf("generate response missing history record id")
	}
	return gd.AigcData.HistoryRecordID, nil
}

type historyRecord struct {
	Status   int              `json:"status"`
	FailCode string           `json:"fail_code"`
	ItemList []map[string]any `json:"item_list"`
}

var vlabvodPattern = regexp.MustCompile(`https://v[0-9]+-artist\.vlabvod\.com/[^"\s\\]+`)

// HistoryFetch returns a fetch callback that queries one history record.
// Two quirks of the backend are absorbed here: the record may be invisible
// for a few rounds right after submission (reported as processing, not an
// error), and for video jobs a finished CDN URL can appear in the raw
// payload before the status flips, which counts as success immediately.
func (c *Client) HistoryFetch(token, historyID string, video bool) polling.FetchFunc {
	info := region.FromToken(token)
	return func(ctx context.Context) (polling.Snapshot, error) {
		raw, err := c.postRaw(ctx, c.base(info), token, "/mweb/v1/get_history_by_ids", nil, map[string]any{
			"history_ids": []string{historyID},
		})
		if err != nil {
			return polling.Snapshot{}, err
		}

		if video {
			if match := vlabvodPattern.Find(raw); match != nil {
				return polling.Snapshot{
					Status:    polling.StatusSuccess,
					ItemCount: 1,
					Payload: map[string]any{
						"item_list": []map[string]any{{
							"video": map[string]any{
								"transcoded_video": map[string]any{
									"origin": map[string]any{"video_url": string(match)},
								},
							},
						}},
					},
				}, nil
			}
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return polling.Snapshot{}, fmt.Errorf("decode history response: %w", err)
		}
		if env.Ret != "" && env.Ret != "0" {
			return polling.Snapshot{}, &APIError{Ret: env.Ret, Message: env.ErrMsg, Path: "/mweb/v1/get_history_by_ids"}
		}

		var records map[string]json.RawMessage
		if err := json.Unmarshal(env.Data, &records); err != nil {
			return polling.Snapshot{}, fmt.Errorf("decode history records: %w", err)
		}
		recordRaw, ok := records[historyID]
		if !ok {
			return polling.Snapshot{Status: polling.StatusProcessing}, nil
		}

		var rec historyRecord
		if err := json.Unmarshal(recordRaw, &rec); err != nil {
			return polling.Snapshot{}, fmt.Errorf("decode history record: %w", err)
		}
		var payload map[string]any
		if err := json.Unmarshal(recordRaw, &payload); err != nil {
			return polling.Snapshot{}, err
		}
		return polling.Snapshot{
			Status:    polling.Status(rec.Status),
			ItemCount: len(rec.ItemList),
			FailCode:  rec.FailCode,
			Payload:   payload,
		}, nil
	}
}

// LocalItems fetches the workbench item list for an asset, used to look up
// a higher-quality download URL after generation. is_for_video_download is
// what makes the backend return the high-bitrate variant.
func (c *Client) LocalItems(ctx context.Context, token, itemID string) ([]byte, error) {
	info := region.FromToken(token)
	return c.postRaw(ctx, c.base(info), token, "/mweb/v1/get_local_item_list", nil, map[string]any{
		"item_id_list": []string{itemID},
		"pack_item_opt": map[string]any{
			"scene":               1,
			"need_data_integrity": true,
		},
		"is_for_video_download": true,
	})
}

// HighQualityVideoURL tries to upgrade an extracted video URL via the item
// list lookup: structured fields from the returned item list first, then the
// host-pattern scans over the raw payload. Any failure falls back to the
// original URL; the upgrade is strictly best-effort.
func (c *Client) HighQualityVideoURL(ctx context.Context, token, itemID, fallback string) string {
	if itemID == "" {
		return fallback
	}
	raw, err := c.LocalItems(ctx, token, itemID)
	if err != nil {
		c.logger.Debug("high quality lookup failed", slog.String("item_id", itemID), slog.Any("error", err))
		return fallback
	}
	for _, item := range localItems(raw) {
		if u := extract.HighQualityVideoURL(item); u != "" {
			return u
		}
	}
	if u := extract.HighQualityVideoURLFromRaw(raw); u != "" {
		return u
	}
	return fallback
}

// localItems decodes the item list out of a get_local_item_list response;
// the backend has shipped it under both item_list and local_item_list.
func localItems(raw []byte) []map[string]any {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil
	}
	var data map[string]any
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil
	}
	for _, key := range []string{"item_list", "local_item_list"} {
		list, ok := data[key].([]any)
		if !ok || len(list) == 0 {
			continue
		}
		items := make([]map[string]any, 0, len(list))
		for _, v := range list {
			if m, ok := v.(map[string]any); ok {
				items = append(items, m)
			}
		}
		return items
	}
	return nil
}

// TokenLive reports whether a session token is still accepted by the
// backend, probed with a credit query.
func (c *Client) TokenLive(ctx context.Context, token string) bool {
	_, err := c.GetCredit(ctx, token)
	return err == nil
}
