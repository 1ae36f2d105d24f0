// Package extract recovers media URLs from terminal job payloads.
//
// The backend's response shape varies across versions, so video extraction
// walks an ordered list of structured fields first and only then falls back
// to scanning the raw payload for a known CDN host pattern. The raw scan is
// a schema-drift defense, deliberately kept apart from the structured
// strategies so it can be dropped once the schema settles. Image responses
// have not exhibited that drift; image extraction is a single field lookup.
package extract

import (
	"regexp"
	"strings"
)

var (
	videoCDNPattern    = regexp.MustCompile(`https://v[0-9]+-artist\.vlabvod\.com/[^"\s\\]+`)
	hqDreamniaPattern  = regexp.MustCompile(`https://v[0-9]+-dreamnia\.jimeng\.com/[^"\s\\]+`)
	hqJimengPattern    = regexp.MustCompile(`https://v[0-9]+-[^"\\]*\.jimeng\.com/[^"\s\\]+`)
	hqAnyVideoPattern  = regexp.MustCompile(`https://v[0-9]+-[^"\\]*\.(?:vlabvod|jimeng)\.com/[^"\s\\]+`)
)

// videoFieldPaths is the ordered structured-field strategy for video items.
var videoFieldPaths = [][]string{
	{"video", "transcoded_video", "origin", "video_url"},
	{"video", "play_url"},
	{"video", "download_url"},
	{"video", "url"},
}

// VideoURL extracts a playable URL from one decoded item, trying each
// structured field in order. Returns "" when none is present.
func VideoURL(item map[string]any) string {
	for _, path := range videoFieldPaths {
		if u := digString(item, path...); u != "" {
			return u
		}
	}
	return ""
}

// VideoURLFromRaw scans a serialized payload for the vendor's video CDN host
// pattern. Last resort only; callers should try VideoURL first.
func VideoURLFromRaw(raw []byte) string {
	return videoCDNPattern.FindString(string(raw))
}

// hqVideoFieldPaths is the download dialog's field preference. It differs
// from the primary extractor: download_url outranks play_url.
var hqVideoFieldPaths = [][]string{
	{"video", "transcoded_video", "origin", "video_url"},
	{"video", "download_url"},
	{"video", "play_url"},
	{"video", "url"},
}

// HighQualityVideoURL extracts a download URL from one decoded
// get_local_item_list item. Returns "" when none is present.
func HighQualityVideoURL(item map[string]any) string {
	for _, path := range hqVideoFieldPaths {
		if u := digString(item, path...); u != "" {
			return u
		}
	}
	return ""
}

// HighQualityVideoURLFromRaw scans a get_local_item_list payload for a
// high-bitrate download URL, from the most specific host pattern to the
// broadest.
func HighQualityVideoURLFromRaw(raw []byte) string {
	s := string(raw)
	for _, re := range []*regexp.Regexp{hqDreamniaPattern, hqJimengPattern, hqAnyVideoPattern} {
		if u := re.FindString(s); u != "" {
			return u
		}
	}
	return ""
}

// ImageURL extracts the large-image URL from one decoded item, normalizing
// escaped ampersands. Returns "" when the field is absent; images get no
// raw-scan fallback.
func ImageURL(item map[string]any) string {
	images, ok := dig(item, "image", "large_images").([]any)
	if !ok || len(images) == 0 {
		return ""
	}
	first, ok := images[0].(map[string]any)
	if !ok {
		return ""
	}
	u, _ := first["image_url"].(string)
	return strings.ReplaceAll(u, `\u0026`, "&")
}

// ImageURLs extracts every resolvable image URL from an item list, skipping
// items without one.
func ImageURLs(items []map[string]any) []string {
	urls := make([]string, 0, len(items))
	for _, item := range items {
		if u := ImageURL(item); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

// ItemID returns the identifier used by the high-quality lookup.
func ItemID(item map[string]any) string {
	if id, _ := item["item_id"].(string); id != "" {
		return id
	}
	id, _ := item["id"].(string)
	return id
}

func dig(m map[string]any, path ...string) any {
	var current any = m
	for _, key := range path {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = obj[key]
	}
	return current
}

func digString(m map[string]any, path ...string) string {
	s, _ := dig(m, path...).(string)
	return s
}
