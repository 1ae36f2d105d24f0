package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamgate/dreamgate/internal/dreamina"
	"github.com/dreamgate/dreamgate/internal/polling"
	"github.com/dreamgate/dreamgate/internal/upload"
)

// fakeBackend serves the vendor API call sequence for one text-only job.
func fakeBackend(t *testing.T, history string) *httptest.Server {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/commerce/v1/benefits/user_credit":
			fmt.Fprint(w, `{"ret":"0","data":{"credit":{"gift_credit":10,"purchase_credit":0,"vip_credit":0}}}`)
		case "/mweb/v1/aigc_draft/generate":
			fmt.Fprint(w, `{"ret":"0","data":{"aigc_data":{"history_record_id":"h-1"}}}`)
		case "/mweb/v1/get_history_by_ids":
			if polls.Add(1) < 2 {
				fmt.Fprint(w, `{"ret":"0","data":{}}`)
				return
			}
			fmt.Fprint(w, history)
		case "/mweb/v1/get_local_item_list":
			fmt.Fprint(w, `{"ret":"0","data":{}}`)
		default:
			t.Errorf("unexpected backend call: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testEcho(t *testing.T, history string) *echo.Echo {
	backend := fakeBackend(t, history)
	client := dreamina.NewClient(nil, dreamina.ClientConfig{
		HTTPClient:  backend.Client(),
		BaseURL:     backend.URL,
		CommerceURL: backend.URL,
	})
	service := dreamina.NewService(nil, dreamina.ServiceConfig{
		Client:           client,
		UploadHTTPClient: backend.Client(),
		Polling: polling.Config{
			MaxAttempts:  10,
			Interval:     time.Millisecond,
			StableRounds: 3,
			Timeout:      time.Minute,
		},
	})

	e := echo.New()
	NewGenerationsHandler(slog.Default(), service).Register(e)
	NewModelsHandler(slog.Default()).Register(e)
	NewInfoHandler(slog.Default()).Register(e)
	return e
}

func doJSON(e *echo.Echo, method, path, auth, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestGenerateVideoRequiresAuthorization(t *testing.T) {
	e := testEcho(t, `{}`)
	rec := doJSON(e, http.MethodPost, "/v1/videos/generations", "", `{"prompt":"p"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGenerateVideoRequiresPrompt(t *testing.T) {
	e := testEcho(t, `{}`)
	rec := doJSON(e, http.MethodPost, "/v1/videos/generations", "Bearer tok", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateVideoRejectsBadDuration(t *testing.T) {
	e := testEcho(t, `{}`)
	rec := doJSON(e, http.MethodPost, "/v1/videos/generations", "Bearer tok",
		`{"prompt":"p","duration":7}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateVideoRejectsTooManyFrameURLs(t *testing.T) {
	e := testEcho(t, `{}`)
	rec := doJSON(e, http.MethodPost, "/v1/videos/generations", "Bearer tok",
		`{"prompt":"p","file_paths":["a","b","c"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateVideoReturnsURL(t *testing.T) {
	history := `{"ret":"0","data":{"h-1":{"status":10,"item_list":[{"video":{"play_url":"https://play/out.mp4"}}]}}}`
	e := testEcho(t, history)

	rec := doJSON(e, http.MethodPost, "/v1/videos/generations", "Bearer tok",
		`{"prompt":"a red fox","model":"jimeng-video-3.0"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp mediaResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "https://play/out.mp4", resp.Data[0].URL)
	assert.Equal(t, "a red fox", resp.Data[0].RevisedPrompt)
}

func TestGenerateImagesReturnsURLs(t *testing.T) {
	item := `{"image":{"large_images":[{"image_url":"https://img/a"}]}}`
	history := fmt.Sprintf(`{"ret":"0","data":{"h-1":{"status":10,"item_list":[%s,%s,%s,%s]}}}`,
		item, item, item, item)
	e := testEcho(t, history)

	rec := doJSON(e, http.MethodPost, "/v1/images/generations", "Bearer tok",
		`{"prompt":"a quiet harbor"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp mediaResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 4)
}

func TestGenerateVideoJobFailureMapsTo422(t *testing.T) {
	history := `{"ret":"0","data":{"h-1":{"status":30,"fail_code":"2038","item_list":[]}}}`
	e := testEcho(t, history)

	rec := doJSON(e, http.MethodPost, "/v1/videos/generations", "Bearer tok", `{"prompt":"p"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "2038")
}

func TestGenerationErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"job failed", &polling.JobFailedError{FailCode: "1"}, http.StatusUnprocessableEntity},
		{"timeout", &polling.TimeoutError{Attempts: 3}, http.StatusGatewayTimeout},
		{"upload", &upload.Error{Stage: upload.StageApply}, http.StatusBadGateway},
		{"backend", &dreamina.APIError{Ret: "1015"}, http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var httpErr *echo.HTTPError
			require.ErrorAs(t, generationError(tc.err), &httpErr)
			assert.Equal(t, tc.want, httpErr.Code)
		})
	}
}

func TestModelsListPerRegion(t *testing.T) {
	e := testEcho(t, `{}`)

	rec := doJSON(e, http.MethodGet, "/v1/models", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cn modelList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cn))
	assert.NotEmpty(t, cn.Data)
	for _, m := range cn.Data {
		assert.NotContains(t, m.ID, "nanobanana", "mainland catalog has no nano models")
	}

	rec = doJSON(e, http.MethodGet, "/v1/models", "Bearer us-token", "")
	var us modelList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &us))
	ids := make([]string, 0, len(us.Data))
	for _, m := range us.Data {
		ids = append(ids, m.ID)
	}
	assert.Contains(t, ids, "nanobanana")
}

func TestInfo(t *testing.T) {
	e := testEcho(t, `{}`)
	rec := doJSON(e, http.MethodGet, "/", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"service":"dreamgate"`)
}
