// Package region maps a session token's site to the vendor's regional endpoints.
//
// The vendor runs separate deployments for mainland China and the
// international sites (US, HK, JP, SG). Host names, upload service hosts,
// signing regions and assistant ids all differ per site; everything here is
// a fixed lookup, not logic.
package region

import "strings"

// Info carries the site flags for one operation. Immutable once derived.
type Info struct {
	IsCN            bool
	IsUS            bool
	IsHK            bool
	IsJP            bool
	IsSG            bool
	IsInternational bool
}

// Region codes as the vendor APIs expect them.
const (
	CodeCN = "cn"
	CodeUS = "US"
	CodeHK = "HK"
	CodeJP = "JP"
	CodeSG = "SG"
)

// Assistant ids per site; the CN deployment uses its own aid.
const (
	AssistantIDCN            = 513695
	AssistantIDInternational = 513641
)

// DefaultSpaceName is the VOD space used when the token response omits one.
const DefaultSpaceName = "dreamina"

// FromToken derives region flags from a session token's site prefix
// (e.g. "us-…", "hk-…"). Tokens without a recognized prefix are CN.
func FromToken(token string) Info {
	lower := strings.ToLower(strings.TrimSpace(token))
	switch {
	case strings.HasPrefix(lower, "us-"):
		return Info{IsUS: true, IsInternational: true}
	case strings.HasPrefix(lower, "hk-"):
		return Info{IsHK: true, IsInternational: true}
	case strings.HasPrefix(lower, "jp-"):
		return Info{IsJP: true, IsInternational: true}
	case strings.HasPrefix(lower, "sg-"):
		return Info{IsSG: true, IsInternational: true}
	default:
		return Info{IsCN: true}
	}
}

// StripPrefix removes the site prefix from a token so the remainder can be
// sent to the vendor verbatim.
func StripPrefix(token string) string {
	trimmed := strings.TrimSpace(token)
	lower := strings.ToLower(trimmed)
	for _, p := range []string{"us-", "hk-", "jp-", "sg-"} {
		if strings.HasPrefix(lower, p) {
			return trimmed[len(p):]
		}
	}
	return trimmed
}

// Code returns the region code used in common request params.
func (i Info) Code() string {
	switch {
	case i.IsUS:
		return CodeUS
	case i.IsHK:
		return CodeHK
	case i.IsJP:
		return CodeJP
	case i.IsSG:
		return CodeSG
	default:
		return CodeCN
	}
}

// BaseURL returns the mweb API host for the site.
func (i Info) BaseURL() string {
	switch {
	case i.IsUS:
		return "https://dreamina-api.us.capcut.com"
	case i.IsHK, i.IsJP, i.IsSG:
		return "https://mweb-api-sg.capcut.com"
	default:
		return "https://jimeng.jianying.com"
	}
}

// CommerceURL returns the host serving credit/benefit endpoints.
func (i Info) CommerceURL() string {
	switch {
	case i.IsUS:
		return "https://commerce.us.capcut.com"
	case i.IsHK, i.IsJP, i.IsSG:
		return "https://commerce-api-sg.capcut.com"
	default:
		return "https://jimeng.jianying.com"
	}
}

// ImageXHost returns the image upload (ImageX) API host.
func (i Info) ImageXHost() string {
	switch {
	case i.IsUS:
		return "https://imagex16-normal-us-ttp.capcutapi.us"
	case i.IsHK, i.IsJP, i.IsSG:
		return "https://imagex-normal-sg.capcutapi.com"
	default:
		return "https://imagex.bytedanceapi.com"
	}
}

// VODHost returns the video upload (VOD) API host. The VOD subsystem is not
// split per site.
func (i Info) VODHost() string {
	return "https://vod.bytedanceapi.com"
}

// SigningRegion returns the region component of the request signature scope.
func (i Info) SigningRegion() string {
	switch {
	case i.IsUS:
		return "us-east-1"
	case i.IsHK, i.IsJP, i.IsSG:
		return "ap-singapore-1"
	default:
		return "cn-north-1"
	}
}

// Origin returns the browser origin the vendor expects on upload requests.
func (i Info) Origin() string {
	if i.IsInternational {
		return "https://dreamina.capcut.com"
	}
	return "https://jimeng.jianying.com"
}

// AssistantID returns the aid sent in http_common_info.
func (i Info) AssistantID() int {
	if i.IsInternational {
		return AssistantIDInternational
	}
	return AssistantIDCN
}
