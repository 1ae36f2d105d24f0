package dreamina

import (
	"testing"

	"github.com/dreamgate/dreamgate/internal/region"
)

var (
	regionCN = region.Info{IsCN: true}
	regionUS = region.Info{IsUS: true, IsInternational: true}
	regionSG = region.Info{IsSG: true, IsInternational: true}
)

func TestResolveVideoModel(t *testing.T) {
	cases := []struct {
		name   string
		model  string
		region region.Info
		want   string
	}{
		{"cn known", "jimeng-video-3.0", regionCN, "dreamina_ic_generate_video_model_vgfm_3.0"},
		{"cn unknown falls back to default", "no-such-model", regionCN, "dreamina_ic_generate_video_model_vgfm_3.5_pro"},
		{"us veo3 unavailable, default", "jimeng-video-veo3", regionUS, "dreamina_ic_generate_video_model_vgfm_3.5_pro"},
		{"asia veo3", "jimeng-video-veo3", regionSG, "dreamina_veo3_generate_video"},
		{"asia sora2", "jimeng-video-sora2", regionSG, "dreamina_sora2_generate_video"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ResolveVideoModel(tc.model, tc.region); got != tc.want {
				t.Errorf("ResolveVideoModel = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestResolveImageModel(t *testing.T) {
	if got := ResolveImageModel("nanobanana", regionCN); got != imageModelMapCN[DefaultImageModel] {
		t.Errorf("cn nanobanana should fall back to default, got %q", got)
	}
	if got := ResolveImageModel("nanobanana", regionUS); got != "external_model_gemini_flash_image_v25" {
		t.Errorf("us nanobanana = %q", got)
	}
}

func TestVideoBenefitType(t *testing.T) {
	cases := map[string]string{
		"dreamina_veo3.1_generate_video":                 "generate_video_veo3.1",
		"dreamina_veo3_generate_video":                   "generate_video_veo3",
		"dreamina_sora2_generate_video":                  "generate_video_sora2",
		"dreamina_ic_generate_video_model_vgfm_3.5_pro":  "dreamina_video_seedance_15_pro",
		"dreamina_ic_generate_video_model_vgfm_3.0":      "basic_video_operation_vgfm_v_three",
		"dreamina_ic_generate_video_model_vgfm_3.0_fast": "basic_video_operation_vgfm_v_three",
	}
	for model, want := range cases {
		if got := videoBenefitType(model); got != want {
			t.Errorf("videoBenefitType(%q) = %q, want %q", model, got, want)
		}
	}
}

func TestResolveVideoDuration(t *testing.T) {
	cases := []struct {
		model     string
		requested int
		want      int
	}{
		{"dreamina_veo3_generate_video", 5, 8},
		{"dreamina_veo3_generate_video", 12, 8},
		{"dreamina_sora2_generate_video", 0, 4},
		{"dreamina_sora2_generate_video", 8, 8},
		{"dreamina_sora2_generate_video", 12, 12},
		{"dreamina_sora2_generate_video", 10, 4},
		{"dreamina_ic_generate_video_model_vgfm_3.5_pro", 0, 5},
		{"dreamina_ic_generate_video_model_vgfm_3.5_pro", 10, 10},
		{"dreamina_ic_generate_video_model_vgfm_3.5_pro", 12, 12},
		{"dreamina_ic_generate_video_model_vgfm_3.0", 10, 10},
		{"dreamina_ic_generate_video_model_vgfm_3.0", 7, 5},
	}
	for _, tc := range cases {
		if got := resolveVideoDuration(tc.model, tc.requested); got != tc.want {
			t.Errorf("resolveVideoDuration(%q, %d) = %d, want %d", tc.model, tc.requested, got, tc.want)
		}
	}
}

func TestSupportsResolution(t *testing.T) {
	if !supportsResolution("dreamina_ic_generate_video_model_vgfm_3.0") {
		t.Error("3.0 should accept resolution")
	}
	if !supportsResolution("dreamina_ic_generate_video_model_vgfm_3.0_fast") {
		t.Error("3.0-fast should accept resolution")
	}
	if supportsResolution("dreamina_ic_generate_video_model_vgfm_3.0_pro") {
		t.Error("3.0-pro should not accept resolution")
	}
	if supportsResolution("dreamina_ic_generate_video_model_vgfm_3.5_pro") {
		t.Error("3.5-pro should not accept resolution")
	}
}

func TestResolveResolution(t *testing.T) {
	t.Run("cn rejects nano models", func(t *testing.T) {
		if _, err := ResolveResolution("nanobanana", regionCN, "2k", "1:1"); err == nil {
			t.Fatal("expected error")
		}
		if _, err := ResolveResolution("nanobananapro", regionCN, "2k", "1:1"); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("us nanobanana forced square", func(t *testing.T) {
		res, err := ResolveResolution("nanobanana", regionUS, "4k", "16:9")
		if err != nil {
			t.Fatal(err)
		}
		if res.Width != 1024 || res.Height != 1024 || res.Type != "2k" || !res.Forced {
			t.Errorf("unexpected resolution: %+v", res)
		}
	})

	t.Run("asia nanobanana pinned to 1k with free ratio", func(t *testing.T) {
		res, err := ResolveResolution("nanobanana", regionSG, "2k", "16:9")
		if err != nil {
			t.Fatal(err)
		}
		if res.Type != "1k" || res.Width != 1024 || res.Height != 576 || !res.Forced {
			t.Errorf("unexpected resolution: %+v", res)
		}
	})

	t.Run("nanobananapro 4k uses dedicated table", func(t *testing.T) {
		res, err := ResolveResolution("nanobananapro", regionUS, "4k", "16:9")
		if err != nil {
			t.Fatal(err)
		}
		if res.Width != 5404 || res.Height != 3040 || res.Ratio != 3 {
			t.Errorf("unexpected resolution: %+v", res)
		}
	})

	t.Run("defaults", func(t *testing.T) {
		res, err := ResolveResolution("jimeng-4.5", regionCN, "", "")
		if err != nil {
			t.Fatal(err)
		}
		if res.Width != 2048 || res.Height != 2048 || res.Type != "2k" {
			t.Errorf("unexpected resolution: %+v", res)
		}
	})

	t.Run("unknown ratio", func(t *testing.T) {
		if _, err := ResolveResolution("jimeng-4.5", regionCN, "2k", "5:4"); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestListModels(t *testing.T) {
	images, videos := ListModels(regionUS)
	if len(images) != len(imageModelMapUS) || len(videos) != len(videoModelMapUS) {
		t.Errorf("unexpected counts: %d images, %d videos", len(images), len(videos))
	}
	for i := 1; i < len(images); i++ {
		if images[i-1] > images[i] {
			t.Fatalf("images not sorted: %v", images)
		}
	}
}
