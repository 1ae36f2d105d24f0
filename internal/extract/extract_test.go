package extract

import (
	"encoding/json"
	"testing"
)

func decodeItem(t *testing.T, raw string) map[string]any {
	t.Helper()
	var item map[string]any
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		t.Fatal(err)
	}
	return item
}

func TestVideoURLStrategyOrder(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "origin wins over play_url",
			raw:  `{"video":{"transcoded_video":{"origin":{"video_url":"https://origin"}},"play_url":"https://play"}}`,
			want: "https://origin",
		},
		{
			name: "play_url",
			raw:  `{"video":{"play_url":"https://play"}}`,
			want: "https://play",
		},
		{
			name: "download_url only",
			raw:  `{"video":{"download_url":"https://x"}}`,
			want: "https://x",
		},
		{
			name: "bare url",
			raw:  `{"video":{"url":"https://bare"}}`,
			want: "https://bare",
		},
		{
			name: "no video",
			raw:  `{"other":1}`,
			want: "",
		},
		{
			name: "video wrong type",
			raw:  `{"video":"nope"}`,
			want: "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := VideoURL(decodeItem(t, tc.raw)); got != tc.want {
				t.Errorf("VideoURL = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestVideoURLFromRaw(t *testing.T) {
	raw := []byte(`{"something":"https://v26-artist.vlabvod.com/abc/def?x=1","noise":true}`)
	if got := VideoURLFromRaw(raw); got != "https://v26-artist.vlabvod.com/abc/def?x=1" {
		t.Errorf("VideoURLFromRaw = %q", got)
	}
	if got := VideoURLFromRaw([]byte(`{"url":"https://example.com/video.mp4"}`)); got != "" {
		t.Errorf("expected no match for foreign host, got %q", got)
	}
}

func TestHighQualityVideoURLFieldOrder(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "origin wins",
			raw:  `{"video":{"transcoded_video":{"origin":{"video_url":"https://origin"}},"download_url":"https://dl"}}`,
			want: "https://origin",
		},
		{
			name: "download_url outranks play_url",
			raw:  `{"video":{"download_url":"https://dl","play_url":"https://play"}}`,
			want: "https://dl",
		},
		{
			name: "play_url",
			raw:  `{"video":{"play_url":"https://play","url":"https://bare"}}`,
			want: "https://play",
		},
		{
			name: "miss",
			raw:  `{"video":{}}`,
			want: "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := HighQualityVideoURL(decodeItem(t, tc.raw)); got != tc.want {
				t.Errorf("HighQualityVideoURL = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestHighQualityVideoURLFromRaw(t *testing.T) {
	// The dreamnia host wins even when a generic vlabvod URL appears first.
	raw := []byte(`{"a":"https://v3-artist.vlabvod.com/low","b":"https://v9-dreamnia.jimeng.com/high"}`)
	if got := HighQualityVideoURLFromRaw(raw); got != "https://v9-dreamnia.jimeng.com/high" {
		t.Errorf("HighQualityVideoURLFromRaw = %q", got)
	}
	if got := HighQualityVideoURLFromRaw([]byte(`{}`)); got != "" {
		t.Errorf("expected empty on miss, got %q", got)
	}
}

func TestImageURL(t *testing.T) {
	item := decodeItem(t, `{"image":{"large_images":[{"image_url":"https://img?a=1\\u0026b=2"}]}}`)
	got := ImageURL(item)
	if got != "https://img?a=1&b=2" {
		t.Errorf("ImageURL = %q", got)
	}

	if got := ImageURL(decodeItem(t, `{"image":{"large_images":[]}}`)); got != "" {
		t.Errorf("empty large_images should miss, got %q", got)
	}
	if got := ImageURL(decodeItem(t, `{}`)); got != "" {
		t.Errorf("absent image should miss, got %q", got)
	}
}

func TestImageURLs(t *testing.T) {
	items := []map[string]any{
		decodeItem(t, `{"image":{"large_images":[{"image_url":"https://one"}]}}`),
		decodeItem(t, `{}`),
		decodeItem(t, `{"image":{"large_images":[{"image_url":"https://two"}]}}`),
	}
	got := ImageURLs(items)
	if len(got) != 2 || got[0] != "https://one" || got[1] != "https://two" {
		t.Errorf("ImageURLs = %v", got)
	}
}

func TestItemID(t *testing.T) {
	if got := ItemID(decodeItem(t, `{"item_id":"i1","id":"i2"}`)); got != "i1" {
		t.Errorf("ItemID = %q", got)
	}
	if got := ItemID(decodeItem(t, `{"id":"i2"}`)); got != "i2" {
		t.Errorf("ItemID fallback = %q", got)
	}
	if got := ItemID(decodeItem(t, `{}`)); got != "" {
		t.Errorf("ItemID empty = %q", got)
	}
}
