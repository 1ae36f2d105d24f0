// Command dreamgate-cli runs one-shot generation jobs against the vendor
// backend without the HTTP server, for operators.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dreamgate/dreamgate/internal/config"
	"github.com/dreamgate/dreamgate/internal/dreamina"
	"github.com/dreamgate/dreamgate/internal/logger"
	"github.com/dreamgate/dreamgate/internal/polling"
	"github.com/dreamgate/dreamgate/internal/version"
)

type cliOptions struct {
	configPath string
	token      string
	model      string
	ratio      string
	resolution string
	duration   int
	frames     []string
	images     []string
	negative   string
}

var opts cliOptions

func newService() (*dreamina.Service, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)

	if opts.token == "" {
		opts.token = os.Getenv("DREAMGATE_TOKEN")
	}
	if opts.token == "" {
		return nil, fmt.Errorf("a session token is required (--token or DREAMGATE_TOKEN)")
	}

	client := dreamina.NewClient(logger.L, dreamina.ClientConfig{
		HTTPClient: &http.Client{
			Timeout: time.Duration(cfg.Backend.RequestTimeoutSeconds) * time.Second,
		},
	})
	return dreamina.NewService(logger.L, dreamina.ServiceConfig{
		Client: client,
		UploadHTTPClient: &http.Client{
			Timeout: time.Duration(cfg.Upload.TimeoutSeconds) * time.Second,
		},
		TokenPerMinute: cfg.Upload.TokenPerMinute,
		Polling: polling.Config{
			MaxAttempts:  cfg.Polling.MaxAttempts,
			Interval:     time.Duration(cfg.Polling.IntervalMs) * time.Millisecond,
			StableRounds: cfg.Polling.StableRounds,
			Timeout:      time.Duration(cfg.Polling.TimeoutSeconds) * time.Second,
		},
		InitialDelay: time.Duration(cfg.Polling.InitialDelaySeconds) * time.Second,
	}), nil
}

func readFiles(paths []string) ([][]byte, error) {
	var data [][]byte
	for _, p := range paths {
		raw, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		data = append(data, raw)
	}
	return data, nil
}

func newVideoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "video [prompt]",
		Short: "Generate a video and print its URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService()
			if err != nil {
				return err
			}
			frames, err := readFiles(opts.frames)
			if err != nil {
				return err
			}
			url, err := svc.GenerateVideo(cmd.Context(), opts.token, dreamina.VideoRequest{
				Model:      opts.model,
				Prompt:     args[0],
				Ratio:      opts.ratio,
				Resolution: opts.resolution,
				DurationS:  opts.duration,
				Frames:     frames,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.model, "model", dreamina.DefaultVideoModel, "video model name")
	cmd.Flags().StringVar(&opts.ratio, "ratio", "1:1", "aspect ratio")
	cmd.Flags().StringVar(&opts.resolution, "resolution", "720p", "resolution for models that accept one")
	cmd.Flags().IntVar(&opts.duration, "duration", 5, "clip duration in seconds")
	cmd.Flags().StringSliceVar(&opts.frames, "frame", nil, "frame image file (first, then optional last)")
	return cmd
}

func newImageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "image [prompt]",
		Short: "Generate images and print their URLs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService()
			if err != nil {
				return err
			}
			inputs, err := readFiles(opts.images)
			if err != nil {
				return err
			}
			urls, err := svc.GenerateImages(cmd.Context(), opts.token, dreamina.ImageRequest{
				Model:          opts.model,
				Prompt:         args[0],
				NegativePrompt: opts.negative,
				Ratio:          opts.ratio,
				Resolution:     opts.resolution,
				Images:         inputs,
			})
			if err != nil {
				return err
			}
			for _, u := range urls {
				fmt.Fprintln(cmd.OutOrStdout(), u)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.model, "model", dreamina.DefaultImageModel, "image model name")
	cmd.Flags().StringVar(&opts.ratio, "ratio", "1:1", "aspect ratio")
	cmd.Flags().StringVar(&opts.resolution, "resolution", "2k", "resolution tier (1k, 2k, 4k)")
	cmd.Flags().StringVar(&opts.negative, "negative-prompt", "", "negative prompt")
	cmd.Flags().StringSliceVar(&opts.images, "input", nil, "input image file for blend mode")
	return cmd
}

func main() {
	root := &cobra.Command{
		Use:           "dreamgate-cli",
		Short:         "One-shot generation jobs against the Dreamina backend",
		Version:       version.GetInfo(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file path")
	root.PersistentFlags().StringVar(&opts.token, "token", "", "vendor session token (or DREAMGATE_TOKEN)")
	root.AddCommand(newVideoCmd(), newImageCmd())

	if err := root.Execute(); err != nil {
		slog.Error("command failed", slog.Any("error", err))
		os.Exit(1)
	}
}
