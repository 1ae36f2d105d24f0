package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamgate/dreamgate/internal/region"
)

func staticToken(serviceID string) TokenFunc {
	return func(ctx context.Context, scene int) (Session, error) {
		return Session{
			AccessKeyID:     "AKTEST",
			SecretAccessKey: "secret",
			SessionToken:    "sts-token",
			ServiceID:       serviceID,
		}, nil
	}
}

// fakeBackend serves all four protocol steps for both asset kinds from one
// httptest server, recording what the pipeline sent.
type fakeBackend struct {
	t *testing.T

	applyFileSize   string
	transferBody    []byte
	transferCRC     string
	transferAuth    string
	commitBody      []byte
	applyStatus     int
	transferCode    int
	commitURIStatus int
	videoDuration   float64

	srv *httptest.Server
}

func newFakeBackend(t *testing.T) *fakeBackend {
	b := &fakeBackend{t: t, transferCode: StatusStored, commitURIStatus: StatusStored, videoDuration: 8}
	b.srv = httptest.NewServer(http.HandlerFunc(b.handle))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBackend) handle(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/upload/v1/") {
		b.transferBody, _ = io.ReadAll(r.Body)
		b.transferCRC = r.Header.Get("Content-CRC32")
		b.transferAuth = r.Header.Get("Authorization")
		fmt.Fprintf(w, `{"code":%d,"message":"ok"}`, b.transferCode)
		return
	}

	if auth := r.Header.Get("Authorization"); !strings.HasPrefix(auth, "AWS4-HMAC-SHA256 Credential=AKTEST/") {
		b.t.Errorf("unexpected authorization header: %q", auth)
	}

	switch r.URL.Query().Get("Action") {
	case "ApplyImageUpload":
		b.applyFileSize = r.URL.Query().Get("FileSize")
		if b.applyStatus != 0 {
			w.WriteHeader(b.applyStatus)
			return
		}
		fmt.Fprintf(w, `{"Result":{"UploadAddress":{"StoreInfos":[{"StoreUri":"tos/abc.png","Auth":"slot-auth"}],"UploadHosts":[%q],"SessionKey":"sk-img"}}}`, b.srv.URL)
	case "CommitImageUpload":
		b.commitBody, _ = io.ReadAll(r.Body)
		fmt.Fprintf(w, `{"Result":{"Results":[{"Uri":"tos/abc.png","UriStatus":%d}],"PluginResult":[{"ImageWidth":1024,"ImageHeight":768,"ImageFormat":"png"}]}}`, b.commitURIStatus)
	case "ApplyUploadInner":
		b.applyFileSize = r.URL.Query().Get("FileSize")
		if b.applyStatus != 0 {
			w.WriteHeader(b.applyStatus)
			return
		}
		fmt.Fprintf(w, `{"Result":{"InnerUploadAddress":{"UploadNodes":[{"Vid":"v-123","StoreInfos":[{"StoreUri":"vod/clip.mp4","Auth":"slot-auth"}],"UploadHost":%q,"SessionKey":"sk-vid"}]}}}`, b.srv.URL)
	case "CommitUploadInner":
		b.commitBody, _ = io.ReadAll(r.Body)
		fmt.Fprintf(w, `{"Result":{"Results":[{"Vid":"v-123","VideoMeta":{"Width":1280,"Height":720,"Duration":%g,"Format":"mp4","Codec":"h264","Size":9000}}]}}`, b.videoDuration)
	default:
		b.t.Errorf("unexpected request: %s %s", r.Method, r.URL)
		w.WriteHeader(http.StatusNotFound)
	}
}

func (b *fakeBackend) pipeline(token TokenFunc) *Pipeline {
	return NewPipeline(nil, Config{
		Region:     region.Info{IsCN: true},
		Token:      token,
		HTTPClient: b.srv.Client(),
		ImageXHost: b.srv.URL,
		VODHost:    b.srv.URL,
	})
}

func TestUploadImage(t *testing.T) {
	b := newFakeBackend(t)
	p := b.pipeline(staticToken("svc-1"))
	data := []byte("not really a png but the backend does not care here")

	ref, err := p.UploadImage(context.Background(), data)
	require.NoError(t, err)

	assert.Equal(t, KindImage, ref.Kind)
	assert.Equal(t, "tos/abc.png", ref.URI)
	assert.Equal(t, int64(len(data)), ref.SizeBytes)
	assert.Equal(t, 1024, ref.Width)
	assert.Equal(t, 768, ref.Height)

	assert.Equal(t, fmt.Sprint(len(data)), b.applyFileSize)
	assert.Equal(t, data, b.transferBody)
	assert.Equal(t, fmt.Sprintf("%08x", crc32.ChecksumIEEE(data)), b.transferCRC)
	assert.Equal(t, b.transferCRC, ref.CRC32)
	assert.Equal(t, "slot-auth", b.transferAuth)

	var commit map[string]any
	require.NoError(t, json.Unmarshal(b.commitBody, &commit))
	assert.Equal(t, "sk-img", commit["SessionKey"])
}

func TestUploadVideo(t *testing.T) {
	b := newFakeBackend(t)
	p := b.pipeline(staticToken(""))
	data := []byte("mp4 bytes")

	ref, err := p.UploadVideo(context.Background(), data)
	require.NoError(t, err)

	assert.Equal(t, KindVideo, ref.Kind)
	assert.Equal(t, "v-123", ref.VID)
	assert.Equal(t, 8.0, ref.DurationSeconds)
	assert.Equal(t, "mp4", ref.Format)
	assert.Equal(t, data, b.transferBody)
	assert.Equal(t, int64(len(data)), ref.SizeBytes)

	var commit map[string]any
	require.NoError(t, json.Unmarshal(b.commitBody, &commit))
	assert.Equal(t, "sk-vid", commit["SessionKey"])
	assert.Equal(t, []any{}, commit["Functions"])
}

func TestUploadVideoRejectsOverlongClip(t *testing.T) {
	b := newFakeBackend(t)
	b.videoDuration = 15.5
	p := b.pipeline(staticToken(""))

	_, err := p.UploadVideo(context.Background(), []byte("mp4 bytes"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDurationExceeded)

	var ue *Error
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, StageCommit, ue.Stage)
}

func TestUploadImageApplyFailure(t *testing.T) {
	b := newFakeBackend(t)
	b.applyStatus = http.StatusForbidden
	p := b.pipeline(staticToken("svc-1"))

	_, err := p.UploadImage(context.Background(), []byte("x"))
	var ue *Error
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, StageApply, ue.Stage)
	assert.Equal(t, http.StatusForbidden, ue.HTTPStatus)
}

func TestUploadVideoTransferFailure(t *testing.T) {
	b := newFakeBackend(t)
	b.transferCode = 4001
	p := b.pipeline(staticToken(""))

	_, err := p.UploadVideo(context.Background(), []byte("x"))
	var ue *Error
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, StageTransfer, ue.Stage)
}

func TestUploadTokenWithoutCredentials(t *testing.T) {
	b := newFakeBackend(t)
	p := b.pipeline(func(ctx context.Context, scene int) (Session, error) {
		return Session{AccessKeyID: "AK"}, nil
	})

	_, err := p.UploadImage(context.Background(), []byte("x"))
	var ue *Error
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, StageToken, ue.Stage)
}

func TestUploadTokenError(t *testing.T) {
	b := newFakeBackend(t)
	boom := errors.New("token endpoint down")
	p := b.pipeline(func(ctx context.Context, scene int) (Session, error) {
		return Session{}, boom
	})

	_, err := p.Upload(context.Background(), []byte("x"), KindVideo)
	assert.ErrorIs(t, err, boom)
}
