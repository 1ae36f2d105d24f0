package dreamina

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dreamgate/dreamgate/internal/region"
)

// The draft format mirrors what the vendor's web client serializes. The
// payload is a JSON string nested inside a JSON request; field order and
// the embedded uuids are not significant, the structure is.

func draftSeed() int {
	return rand.IntN(100_000_000) + 2_500_000_000
}

func nowMillis() string {
	return fmt.Sprint(time.Now().UnixMilli())
}

func componentMetadata() map[string]any {
	return map[string]any{
		"type":                     "",
		"id":                       uuid.NewString(),
		"created_platform":         3,
		"created_platform_version": "",
		"created_time_in_ms":       nowMillis(),
		"created_did":              "",
	}
}

// frameImage wraps an uploaded image URI the way video_gen_inputs expects
// first and last frames.
func frameImage(uri string) map[string]any {
	return map[string]any{
		"format":        "",
		"height":        0,
		"id":            uuid.NewString(),
		"image_uri":     uri,
		"name":          "",
		"platform_type": 1,
		"source_from":   "upload",
		"type":          "image",
		"uri":           uri,
		"width":         0,
	}
}

// VideoDraftOptions collects everything the video draft builder needs.
// FrameURIs holds up to two uploaded image URIs: first frame, then an
// optional last frame.
type VideoDraftOptions struct {
	UserModel string
	Model     string
	Prompt    string
	Ratio     string
	// Resolution only reaches the wire for models that accept it.
	Resolution string
	DurationS  int
	FrameURIs  []string
	Region     region.Info
}

// BuildVideoDraft assembles the aigc_draft/generate request body for a
// video job and returns it with the submit id.
func BuildVideoDraft(opts VideoDraftOptions) (map[string]any, string) {
	componentID := uuid.NewString()
	submitID := uuid.NewString()
	originSubmitID := uuid.NewString()

	withResolution := supportsResolution(opts.Model)
	benefit := videoBenefitType(opts.Model)

	sceneOption := map[string]any{
		"type":          "video",
		"scene":         "BasicVideoGenerateButton",
		"modelReqKey":   opts.Model,
		"videoDuration": opts.DurationS,
		"reportParams": map[string]any{
			"enterSource":                      "generate",
			"vipSource":                        "generate",
			"extraVipFunctionKey":              opts.Model,
			"useVipFunctionDetailsReporterHoc": true,
		},
	}
	if withResolution {
		sceneOption["resolution"] = opts.Resolution
		sceneOption["reportParams"].(map[string]any)["extraVipFunctionKey"] = opts.Model + "-" + opts.Resolution
	}
	metricsExtra := mustJSON(map[string]any{
		"promptSource":   "custom",
		"isDefaultSeed":  1,
		"originSubmitId": originSubmitID,
		"isRegenerate":   false,
		"enterFrom":      "click",
		"functionMode":   "first_last_frames",
		"sceneOptions":   mustJSON([]any{sceneOption}),
	})

	genInput := map[string]any{
		"type":           "",
		"id":             uuid.NewString(),
		"min_version":    "3.0.5",
		"prompt":         opts.Prompt,
		"video_mode":     2,
		"fps":            24,
		"duration_ms":    opts.DurationS * 1000,
		"idip_meta_list": []any{},
	}
	if withResolution {
		genInput["resolution"] = opts.Resolution
	}
	if len(opts.FrameURIs) > 0 && opts.FrameURIs[0] != "" {
		genInput["first_frame_image"] = frameImage(opts.FrameURIs[0])
	}
	if len(opts.FrameURIs) > 1 && opts.FrameURIs[1] != "" {
		genInput["end_frame_image"] = frameImage(opts.FrameURIs[1])
	}

	commerceInfo := map[string]any{
		"benefit_type":      benefit,
		"resource_id":       "generate_video",
		"resource_id_type":  "str",
		"resource_sub_type": "aigc",
	}

	draft := map[string]any{
		"type":              "draft",
		"id":                uuid.NewString(),
		"min_version":       "3.0.5",
		"min_features":      []any{},
		"is_from_tsn":       true,
		"version":           draftVersion,
		"main_component_id": componentID,
		"component_list": []any{map[string]any{
			"type":        "video_base_component",
			"id":          componentID,
			"min_version": "1.0.0",
			"aigc_mode":   "workbench",
			"metadata":    componentMetadata(),
			"generate_type": "gen_video",
			"abilities": map[string]any{
				"type": "",
				"id":   uuid.NewString(),
				"gen_video": map[string]any{
					"id":   uuid.NewString(),
					"type": "",
					"text_to_video_params": map[string]any{
						"type":               "",
						"id":                 uuid.NewString(),
						"video_gen_inputs":   []any{genInput},
						"video_aspect_ratio": opts.Ratio,
						"seed":               draftSeed(),
						"model_req_key":      opts.Model,
						"priority":           0,
					},
					"video_task_extra": metricsExtra,
				},
			},
			"process_type": 1,
		}},
	}

	body := map[string]any{
		"extend": map[string]any{
			"root_model":                 opts.Model,
			"m_video_commerce_info":      commerceInfo,
			"m_video_commerce_info_list": []any{commerceInfo},
		},
		"submit_id":     submitID,
		"metrics_extra": metricsExtra,
		"draft_content": mustJSON(draft),
		"http_common_info": map[string]any{
			"aid": opts.Region.AssistantID(),
		},
	}
	return body, submitID
}

// ImageDraftOptions collects everything the image draft builder needs.
// ImageURIs switches the draft into blend (image-to-image) mode.
type ImageDraftOptions struct {
	UserModel        string
	Model            string
	Prompt           string
	NegativePrompt   string
	Seed             int
	SampleStrength   float64
	Resolution       Resolution
	IntelligentRatio bool
	ImageURIs        []string
	Region           region.Info
}

// BuildImageDraft assembles the aigc_draft/generate request body for an
// image job and returns it with the submit id.
func BuildImageDraft(opts ImageDraftOptions) (map[string]any, string) {
	componentID := uuid.NewString()
	submitID := uuid.NewString()

	blend := len(opts.ImageURIs) > 0
	generateType := "generate"
	if blend {
		generateType = "blend"
	}

	// intelligent_ratio only applies to the 4.x/5.0 text-to-image models.
	intelligentRatio := opts.IntelligentRatio && intelligentRatioModels[opts.UserModel] && !blend

	// Blend prompts carry two hash marks per input image as placeholders.
	prompt := opts.Prompt
	if blend {
		prompt = strings.Repeat("#", len(opts.ImageURIs)*2) + prompt
	}

	coreParam := map[string]any{
		"type":            "",
		"id":              uuid.NewString(),
		"model":           opts.Model,
		"prompt":          prompt,
		"sample_strength": opts.SampleStrength,
		"large_image_info": map[string]any{
			"type":            "",
			"id":              uuid.NewString(),
			"min_version":     draftMinVersion,
			"height":          opts.Resolution.Height,
			"width":           opts.Resolution.Width,
			"resolution_type": opts.Resolution.Type,
		},
		"intelligent_ratio": intelligentRatio,
	}
	if blend || !intelligentRatio {
		coreParam["image_ratio"] = opts.Resolution.Ratio
	}
	if opts.NegativePrompt != "" {
		coreParam["negative_prompt"] = opts.NegativePrompt
	}
	if opts.Seed != 0 {
		coreParam["seed"] = opts.Seed
	}

	abilities := map[string]any{
		"type": "",
		"id":   uuid.NewString(),
	}
	draftMin := draftMinVersion
	if blend {
		draftMin = "3.2.9"
		blendAbility := map[string]any{
			"type":                         "",
			"id":                           uuid.NewString(),
			"min_features":                 []any{},
			"core_param":                   coreParam,
			"ability_list":                 blendAbilityList(opts.ImageURIs, opts.SampleStrength),
			"prompt_placeholder_info_list": promptPlaceholders(len(opts.ImageURIs)),
			"postedit_param": map[string]any{
				"type":         "",
				"id":           uuid.NewString(),
				"generate_type": 0,
			},
		}
		if len(opts.ImageURIs) >= 2 {
			blendAbility["min_version"] = "3.2.9"
		}
		abilities["blend"] = blendAbility
		abilities["gen_option"] = map[string]any{
			"type":         "",
			"id":           uuid.NewString(),
			"generate_all": false,
		}
	} else {
		abilities["generate"] = map[string]any{
			"type":       "",
			"id":         uuid.NewString(),
			"core_param": coreParam,
			"gen_option": map[string]any{
				"type":         "",
				"id":           uuid.NewString(),
				"generate_all": false,
			},
		}
	}

	scene := "ImageBasicGenerate"
	if blend {
		scene = "ImageMultiGenerate"
	}
	sceneOption := map[string]any{
		"type":           "image",
		"scene":          scene,
		"modelReqKey":    opts.Model,
		"resolutionType": opts.Resolution.Type,
		"abilityList":    []any{},
		"reportParams": map[string]any{
			"enterSource":                      "generate",
			"vipSource":                        "generate",
			"extraVipFunctionKey":              opts.Model + "-" + opts.Resolution.Type,
			"useVipFunctionDetailsReporterHoc": true,
		},
	}
	if !blend {
		sceneOption["benefitCount"] = 4
	}
	metrics := map[string]any{
		"promptSource":  "custom",
		"generateCount": 1,
		"enterFrom":     "click",
		"sceneOptions":  mustJSON([]any{sceneOption}),
		"generateId":    submitID,
		"isRegenerate":  false,
	}
	if blend {
		metrics["templateId"] = ""
		metrics["templateSource"] = ""
		metrics["lastRequestId"] = ""
		metrics["originRequestId"] = ""
	}

	draft := map[string]any{
		"type":              "draft",
		"id":                uuid.NewString(),
		"min_version":       draftMin,
		"min_features":      []any{},
		"is_from_tsn":       true,
		"version":           draftVersion,
		"main_component_id": componentID,
		"component_list": []any{map[string]any{
			"type":          "image_base_component",
			"id":            componentID,
			"min_version":   draftMinVersion,
			"aigc_mode":     "workbench",
			"metadata":      componentMetadata(),
			"generate_type": generateType,
			"abilities":     abilities,
		}},
	}

	body := map[string]any{
		"extend": map[string]any{
			"root_model": opts.Model,
		},
		"submit_id":     submitID,
		"metrics_extra": mustJSON(metrics),
		"draft_content": mustJSON(draft),
		"http_common_info": map[string]any{
			"aid": opts.Region.AssistantID(),
		},
	}
	return body, submitID
}

func blendAbilityList(uris []string, strength float64) []any {
	list := make([]any, 0, len(uris))
	for _, uri := range uris {
		list = append(list, map[string]any{
			"type":           "",
			"id":             uuid.NewString(),
			"name":           "byte_edit",
			"image_uri_list": []any{uri},
			"image_list": []any{map[string]any{
				"type":          "image",
				"id":            uuid.NewString(),
				"source_from":   "upload",
				"platform_type": 1,
				"name":          "",
				"image_uri":     uri,
				"width":         0,
				"height":        0,
				"format":        "",
				"uri":           uri,
			}},
			"strength": strength,
		})
	}
	return list
}

func promptPlaceholders(count int) []any {
	list := make([]any, 0, count)
	for i := 0; i < count; i++ {
		list = append(list, map[string]any{
			"type":          "",
			"id":            uuid.NewString(),
			"ability_index": i,
		})
	}
	return list
}

func mustJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(raw)
}
