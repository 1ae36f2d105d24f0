// Package upload drives the vendor's four-step binary upload protocol:
// acquire a single-use session, apply for a storage slot, transfer the
// bytes, commit. Images go through the ImageX subsystem and videos through
// VOD; both share the same step shape and signing scheme.
package upload

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/dreamgate/dreamgate/internal/region"
	"github.com/dreamgate/dreamgate/internal/signer"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/132.0.0.0 Safari/537.36"

// Config wires one pipeline instance. ImageXHost and VODHost default to the
// regional endpoints and exist mainly so tests can point at a local server.
type Config struct {
	Region     region.Info
	Token      TokenFunc
	HTTPClient *http.Client
	// Limiter throttles session acquisition; the vendor's limits on the
	// signing endpoint are undocumented.
	Limiter    *rate.Limiter
	ImageXHost string
	VODHost    string
}

// Pipeline uploads binary assets for one region. Safe for sequential use;
// every call acquires its own session.
type Pipeline struct {
	region     region.Info
	token      TokenFunc
	client     *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	imagexHost string
	vodHost    string
	now        func() time.Time
}

// NewPipeline creates a pipeline from cfg.
func NewPipeline(log *slog.Logger, cfg Config) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	imagexHost := cfg.ImageXHost
	if imagexHost == "" {
		imagexHost = cfg.Region.ImageXHost()
	}
	vodHost := cfg.VODHost
	if vodHost == "" {
		vodHost = cfg.Region.VODHost()
	}
	return &Pipeline{
		region:     cfg.Region,
		token:      cfg.Token,
		client:     client,
		limiter:    cfg.Limiter,
		logger:     log.With(slog.String("service", "upload")),
		imagexHost: imagexHost,
		vodHost:    vodHost,
		now:        time.Now,
	}
}

// Upload runs the four-step protocol for one asset of the given kind.
func (p *Pipeline) Upload(ctx context.Context, data []byte, kind Kind) (Reference, error) {
	if kind == KindVideo {
		return p.UploadVideo(ctx, data)
	}
	return p.UploadImage(ctx, data)
}

// acquireSession obtains and validates a fresh single-use session.
func (p *Pipeline) acquireSession(ctx context.Context, scene int) (Session, error) {
	if p.token == nil {
		return Session{}, &Error{Stage: StageToken, Message: "no token source configured"}
	}
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return Session{}, &Error{Stage: StageToken, Message: err.Error(), Err: err}
		}
	}
	sess, err := p.token(ctx, scene)
	if err != nil {
		return Session{}, &Error{Stage: StageToken, Message: err.Error(), Err: err}
	}
	if sess.AccessKeyID == "" || sess.SecretAccessKey == "" || sess.SessionToken == "" {
		return Session{}, &Error{Stage: StageToken, Message: "upload token response missing credentials"}
	}
	return sess, nil
}

type responseMetadata struct {
	Error *struct {
		Code    string `json:"Code"`
		Message string `json:"Message"`
	} `json:"Error"`
}

type storeInfo struct {
	StoreURI string `json:"StoreUri"`
	Auth     string `json:"Auth"`
}

// signedCall performs one signed GET or POST against an upload API host and
// decodes the JSON body into out. Non-2xx statuses and vendor error
// envelopes become stage errors.
func (p *Pipeline) signedCall(ctx context.Context, stage Stage, method, rawURL, service string, sess Session, payload []byte, out any) error {
	headers := map[string]string{
		"x-amz-date":           signer.AmzDate(p.now()),
		"x-amz-security-token": sess.SessionToken,
	}
	if method == http.MethodPost {
		sum := sha256.Sum256(payload)
		headers["x-amz-content-sha256"] = hex.EncodeToString(sum[:])
	}

	authorization := signer.Authorization(signer.Request{
		Method:  method,
		URL:     rawURL,
		Headers: headers,
		Payload: payload,
		Region:  p.region.SigningRegion(),
		Service: service,
	}, signer.Credentials{
		AccessKeyID:     sess.AccessKeyID,
		SecretAccessKey: sess.SecretAccessKey,
		SessionToken:    sess.SessionToken,
	})

	var body io.Reader
	if len(payload) > 0 {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return &Error{Stage: stage, Message: err.Error(), Err: err}
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Authorization", authorization)
	req.Header.Set("Origin", p.region.Origin())
	req.Header.Set("Referer", p.region.Origin()+"/ai-tool/generate")
	req.Header.Set("User-Agent", userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if len(payload) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return &Error{Stage: stage, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Stage: stage, HTTPStatus: resp.StatusCode, Message: err.Error(), Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{Stage: stage, HTTPStatus: resp.StatusCode, Message: truncate(raw)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Stage: stage, HTTPStatus: resp.StatusCode, Message: "invalid response body: " + err.Error(), Err: err}
	}
	return nil
}

// transfer posts the raw bytes to the reserved slot. The slot's own auth
// token authorizes this step, not the session signature.
func (p *Pipeline) transfer(ctx context.Context, host, storeURI, auth string, data []byte, checksum string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL(host, storeURI), bytes.NewReader(data))
	if err != nil {
		return nil, &Error{Stage: StageTransfer, Message: err.Error(), Err: err}
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Authorization", auth)
	req.Header.Set("Content-CRC32", checksum)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Content-Disposition", `attachment; filename="undefined"`)
	req.Header.Set("Origin", p.region.Origin())
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &Error{Stage: StageTransfer, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Stage: StageTransfer, HTTPStatus: resp.StatusCode, Message: err.Error(), Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{Stage: StageTransfer, HTTPStatus: resp.StatusCode, Message: truncate(raw)}
	}
	return raw, nil
}

// uploadURL builds the transfer target. Hosts from apply responses come
// without a scheme; test servers pass a full URL.
func uploadURL(host, storeURI string) string {
	return apiBase(host) + "/upload/v1/" + storeURI
}

// checksum returns the hex CRC32 (IEEE) over the exact byte buffer.
func checksum(data []byte) string {
	return fmt.Sprintf("%08x", crc32.ChecksumIEEE(data))
}

// queryNonce mirrors the web client's random query marker on apply calls.
func queryNonce() string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, 10)
	for i := range b {
		b[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return string(b)
}

func truncate(raw []byte) string {
	const limit = 512
	s := string(raw)
	if len(s) > limit {
		return s[:limit] + "…"
	}
	return s
}

func metadataError(md responseMetadata) string {
	if md.Error == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", md.Error.Code, md.Error.Message)
}
