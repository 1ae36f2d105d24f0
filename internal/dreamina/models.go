package dreamina

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dreamgate/dreamgate/internal/region"
)

// Default user-facing model names.
const (
	DefaultImageModel = "jimeng-4.5"
	DefaultVideoModel = "jimeng-video-3.5-pro"
)

// Draft format versions the web client declares.
const (
	draftVersion    = "3.3.8"
	draftMinVersion = "3.0.2"
)

// imageModelMapCN maps user model names to backend request keys on the
// mainland deployment.
var imageModelMapCN = map[string]string{
	"jimeng-5.0": "high_aes_general_v50",
	"jimeng-4.6": "high_aes_general_v42",
	"jimeng-4.5": "high_aes_general_v40l",
	"jimeng-4.1": "high_aes_general_v41",
	"jimeng-4.0": "high_aes_general_v40",
	"jimeng-3.1": "high_aes_general_v30l_art_fangzhou:general_v3.0_18b",
	"jimeng-3.0": "high_aes_general_v30l:general_v3.0_18b",
}

var imageModelMapUS = map[string]string{
	"jimeng-4.5":    "high_aes_general_v40l",
	"jimeng-4.1":    "high_aes_general_v41",
	"jimeng-4.0":    "high_aes_general_v40",
	"jimeng-3.0":    "high_aes_general_v30l:general_v3.0_18b",
	"nanobanana":    "external_model_gemini_flash_image_v25",
	"nanobananapro": "dreamina_image_lib_1",
}

var imageModelMapAsia = map[string]string{
	"jimeng-5.0":    "high_aes_general_v50",
	"jimeng-4.6":    "high_aes_general_v42",
	"jimeng-4.5":    "high_aes_general_v40l",
	"jimeng-4.1":    "high_aes_general_v41",
	"jimeng-4.0":    "high_aes_general_v40",
	"jimeng-3.0":    "high_aes_general_v30l:general_v3.0_18b",
	"nanobanana":    "external_model_gemini_flash_image_v25",
	"nanobananapro": "dreamina_image_lib_1",
}

var videoModelMapCN = map[string]string{
	"jimeng-video-seedance-2.0":      "dreamina_seedance_40_pro",
	"jimeng-video-seedance-2.0-fast": "dreamina_seedance_40",
	"jimeng-video-3.5-pro":           "dreamina_ic_generate_video_model_vgfm_3.5_pro",
	"jimeng-video-3.0-pro":           "dreamina_ic_generate_video_model_vgfm_3.0_pro",
	"jimeng-video-3.0":               "dreamina_ic_generate_video_model_vgfm_3.0",
	"jimeng-video-3.0-fast":          "dreamina_ic_generate_video_model_vgfm_3.0_fast",
	"jimeng-video-2.0":               "dreamina_ic_generate_video_model_vgfm_lite",
	"jimeng-video-2.0-pro":           "dreamina_ic_generate_video_model_vgfm1.0",
}

// The US deployment only exposes the 3.0 and 3.5-pro families.
var videoModelMapUS = map[string]string{
	"jimeng-video-3.5-pro": "dreamina_ic_generate_video_model_vgfm_3.5_pro",
	"jimeng-video-3.0":     "dreamina_ic_generate_video_model_vgfm_3.0",
}

var videoModelMapAsia = map[string]string{
	"jimeng-video-veo3":     "dreamina_veo3_generate_video",
	"jimeng-video-veo3.1":   "dreamina_veo3.1_generate_video",
	"jimeng-video-sora2":    "dreamina_sora2_generate_video",
	"jimeng-video-3.5-pro":  "dreamina_ic_generate_video_model_vgfm_3.5_pro",
	"jimeng-video-3.0-pro":  "dreamina_ic_generate_video_model_vgfm_3.0_pro",
	"jimeng-video-3.0":      "dreamina_ic_generate_video_model_vgfm_3.0",
	"jimeng-video-3.0-fast": "dreamina_ic_generate_video_model_vgfm_3.0_fast",
	"jimeng-video-2.0":      "dreamina_ic_generate_video_model_vgfm_lite",
	"jimeng-video-2.0-pro":  "dreamina_ic_generate_video_model_vgfm1.0",
}

func imageModelMap(info region.Info) map[string]string {
	switch {
	case info.IsUS:
		return imageModelMapUS
	case info.IsHK, info.IsJP, info.IsSG:
		return imageModelMapAsia
	default:
		return imageModelMapCN
	}
}

func videoModelMap(info region.Info) map[string]string {
	switch {
	case info.IsUS:
		return videoModelMapUS
	case info.IsHK, info.IsJP, info.IsSG:
		return videoModelMapAsia
	default:
		return videoModelMapCN
	}
}

// ResolveImageModel maps a user model name to the backend request key for
// the region, falling back to the default model when the name is unknown.
func ResolveImageModel(name string, info region.Info) string {
	m := imageModelMap(info)
	if key, ok := m[name]; ok {
		return key
	}
	if key, ok := m[DefaultImageModel]; ok {
		return key
	}
	return imageModelMapCN[DefaultImageModel]
}

// ResolveVideoModel is the video-side counterpart of ResolveImageModel.
func ResolveVideoModel(name string, info region.Info) string {
	m := videoModelMap(info)
	if key, ok := m[name]; ok {
		return key
	}
	if key, ok := m[DefaultVideoModel]; ok {
		return key
	}
	return videoModelMapCN[DefaultVideoModel]
}

// ListModels returns the user-facing model names available in the region,
// sorted, for the /v1/models listing.
func ListModels(info region.Info) (images, videos []string) {
	for name := range imageModelMap(info) {
		images = append(images, name)
	}
	for name := range videoModelMap(info) {
		videos = append(videos, name)
	}
	sort.Strings(images)
	sort.Strings(videos)
	return images, videos
}

// videoBenefitType picks the commerce benefit key for a resolved video
// model. veo3.1 must be checked before veo3, and 3.5_pro before 3.5.
func videoBenefitType(model string) string {
	switch {
	case strings.Contains(model, "veo3.1"):
		return "generate_video_veo3.1"
	case strings.Contains(model, "veo3"):
		return "generate_video_veo3"
	case strings.Contains(model, "sora2"):
		return "generate_video_sora2"
	case strings.Contains(model, "3.5_pro"):
		return "dreamina_video_seedance_15_pro"
	case strings.Contains(model, "3.5"):
		return "dreamina_video_seedance_15"
	default:
		return "basic_video_operation_vgfm_v_three"
	}
}

// resolveVideoDuration clamps a requested duration (seconds) to what the
// resolved model supports. veo3 renders a fixed 8s; sora2 offers 4/8/12;
// 3.5-pro offers 5/10/12; everything else 5/10.
func resolveVideoDuration(model string, requested int) int {
	switch {
	case strings.Contains(model, "veo3"):
		return 8
	case strings.Contains(model, "sora2"):
		switch requested {
		case 8, 12:
			return requested
		default:
			return 4
		}
	case strings.Contains(model, "3.5_pro"):
		switch requested {
		case 10, 12:
			return requested
		default:
			return 5
		}
	default:
		if requested == 10 {
			return 10
		}
		return 5
	}
}

// supportsResolution reports whether the resolved video model accepts an
// explicit resolution parameter. Only the non-pro 3.0 family does.
func supportsResolution(model string) bool {
	if strings.Contains(model, "_pro") {
		return false
	}
	return strings.Contains(model, "vgfm_3.0")
}

// resolutionSpec is one entry in the image resolution tables.
type resolutionSpec struct {
	Width  int
	Height int
	Ratio  int
}

// resolutionOptions maps resolution tier -> aspect ratio -> dimensions. The
// ratio codes are backend enums, not arithmetic ratios.
var resolutionOptions = map[string]map[string]resolutionSpec{
	"1k": {
		"1:1":  {1024, 1024, 1},
		"4:3":  {768, 1024, 4},
		"3:4":  {1024, 768, 2},
		"16:9": {1024, 576, 3},
		"9:16": {576, 1024, 5},
		"3:2":  {1024, 682, 7},
		"2:3":  {682, 1024, 6},
		"21:9": {1195, 512, 8},
	},
	"2k": {
		"1:1":  {2048, 2048, 1},
		"4:3":  {2304, 1728, 4},
		"3:4":  {1728, 2304, 2},
		"16:9": {2560, 1440, 3},
		"9:16": {1440, 2560, 5},
		"3:2":  {2496, 1664, 7},
		"2:3":  {1664, 2496, 6},
		"21:9": {3024, 1296, 8},
	},
	"4k": {
		"1:1":  {4096, 4096, 101},
		"4:3":  {4608, 3456, 104},
		"3:4":  {3456, 4608, 102},
		"16:9": {5120, 2880, 103},
		"9:16": {2880, 5120, 105},
		"3:2":  {4992, 3328, 107},
		"2:3":  {3328, 4992, 106},
		"21:9": {6048, 2592, 108},
	},
}

// nanobananapro uses dedicated 4k dimensions with the regular ratio codes.
var resolutionOptionsNanoBananaPro4K = map[string]resolutionSpec{
	"1:1":  {4096, 4096, 1},
	"4:3":  {4693, 3520, 4},
	"3:4":  {3520, 4693, 2},
	"16:9": {5404, 3040, 3},
	"9:16": {3040, 5404, 5},
	"3:2":  {4992, 3328, 7},
	"2:3":  {3328, 4992, 6},
	"21:9": {6197, 2656, 8},
}

// Resolution is a resolved image resolution choice.
type Resolution struct {
	Width  int
	Height int
	Ratio  int
	Type   string
	Forced bool
}

// ResolveResolution applies the per-model, per-region resolution rules: the
// mainland deployment rejects the nano family outright; nanobanana on US is
// pinned to 1024x1024@2k; nanobanana on the Asian sites is pinned to the 1k
// tier with a free aspect ratio; everything else honors the request.
func ResolveResolution(userModel string, info region.Info, resolution, ratio string) (Resolution, error) {
	if resolution == "" {
		resolution = "2k"
	}
	if ratio == "" {
		ratio = "1:1"
	}

	isNano := userModel == "nanobanana" || userModel == "nanobananapro"
	if info.IsCN && isNano {
		return Resolution{}, fmt.Errorf("model %q is not available on the mainland site", userModel)
	}

	if userModel == "nanobanana" {
		if info.IsUS {
			return Resolution{Width: 1024, Height: 1024, Ratio: 1, Type: "2k", Forced: true}, nil
		}
		spec, ok := resolutionOptions["1k"][ratio]
		if !ok {
			return Resolution{}, fmt.Errorf("unsupported aspect ratio %q", ratio)
		}
		return Resolution{Width: spec.Width, Height: spec.Height, Ratio: spec.Ratio, Type: "1k", Forced: true}, nil
	}

	if userModel == "nanobananapro" && resolution == "4k" {
		spec, ok := resolutionOptionsNanoBananaPro4K[ratio]
		if !ok {
			return Resolution{}, fmt.Errorf("unsupported aspect ratio %q for 4k", ratio)
		}
		return Resolution{Width: spec.Width, Height: spec.Height, Ratio: spec.Ratio, Type: "4k"}, nil
	}

	tier, ok := resolutionOptions[resolution]
	if !ok {
		return Resolution{}, fmt.Errorf("unsupported resolution %q", resolution)
	}
	spec, ok := tier[ratio]
	if !ok {
		return Resolution{}, fmt.Errorf("unsupported aspect ratio %q at %s", ratio, resolution)
	}
	return Resolution{Width: spec.Width, Height: spec.Height, Ratio: spec.Ratio, Type: resolution}, nil
}

// intelligentRatioModels can pick their own aspect ratio from the prompt.
var intelligentRatioModels = map[string]bool{
	"jimeng-4.0": true,
	"jimeng-4.1": true,
	"jimeng-4.5": true,
	"jimeng-4.6": true,
	"jimeng-5.0": true,
}
