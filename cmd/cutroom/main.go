package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cutroom/cutroom/internal/analyzer"
	"github.com/cutroom/cutroom/internal/config"
	"github.com/cutroom/cutroom/internal/exporter"
	"github.com/cutroom/cutroom/internal/ffmpeg"
	"github.com/cutroom/cutroom/internal/logging"
	"github.com/cutroom/cutroom/internal/timeline"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	ctx := context.Background()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cutroom",
	Short: "cutroom - timeline video export engine",
	Long:  "Exports multi-track timeline projects to encoded video, picking the cheapest correct encode strategy per timeline.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(verbose)

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		cmd.SetContext(config.WithConfig(cmd.Context(), cfg))
		return nil
	},
	SilenceUsage: true,
}

var (
	outputPath string
	keepTemp   bool
	skipOpt    bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	exportCmd.Flags().StringVarP(&outputPath, "output", "o", "output.mp4", "output file path")
	exportCmd.Flags().BoolVar(&keepTemp, "keep-temp", false, "retain the session directory for inspection")
	exportCmd.Flags().BoolVar(&skipOpt, "skip-optimization", false, "force the raster pipeline")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(configCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export [project file]",
	Short: "Export a project to an encoded video file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		if keepTemp {
			cfg.KeepTemp = true
		}
		if skipOpt {
			cfg.SkipOptimization = true
		}

		project, err := timeline.Load(args[0])
		if err != nil {
			return err
		}

		bridge, err := ffmpeg.New(log.Logger, cfg.FFmpeg)
		if err != nil {
			return err
		}

		exp := exporter.New(log.Logger, cfg, bridge)
		data, err := exp.Export(cmd.Context(), project, func(percent int, msg string) {
			log.Info().Int("percent", percent).Msg(msg)
		})
		if err != nil {
			return err
		}

		if err := os.WriteFile(outputPath, data, 0644); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}

		log.Info().
			Str("output", outputPath).
			Int("bytes", len(data)).
			Msg("export complete")
		return nil
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [project file]",
	Short: "Show the export strategy the analyzer would pick",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		project, err := timeline.Load(args[0])
		if err != nil {
			return err
		}

		an := analyzer.New(log.Logger).Analyze(project.Tracks, project.MediaIndex(), project.Canvas)

		fmt.Printf("strategy:            %s\n", an.Strategy)
		fmt.Printf("reason:              %s\n", an.Reason)
		fmt.Printf("target:              %dx%d @ %.3g fps (%s)\n",
			an.Target.Width, an.Target.Height, an.Target.FPS, an.TargetSource)
		fmt.Printf("videos:              %d\n", len(an.Videos))
		fmt.Printf("overlapping videos:  %v\n", an.HasOverlappingVideos)
		fmt.Printf("image elements:      %v\n", an.HasImageElements)
		fmt.Printf("text elements:       %v\n", an.HasTextElements)
		fmt.Printf("stickers:            %v\n", an.HasStickers)
		fmt.Printf("effects:             %v\n", an.HasEffects)
		fmt.Printf("all local paths:     %v\n", an.AllVideosHaveLocalPath)
		fmt.Printf("frame rendering:     %v\n", an.NeedsFrameRendering)
		fmt.Printf("filter encoding:     %v\n", an.NeedsFilterEncoding)

		if err := analyzer.Validate(an); err != nil {
			fmt.Printf("strict validation:   %v\n", err)
		} else {
			fmt.Printf("strict validation:   ok\n")
		}
		return nil
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe [media file]",
	Short: "Probe a media file's properties",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		bridge, err := ffmpeg.New(log.Logger, cfg.FFmpeg)
		if err != nil {
			return err
		}

		info, err := bridge.Probe(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("duration:  %v\n", info.Duration)
		if info.HasVideo {
			fmt.Printf("video:     %dx%d @ %.3f fps, %s (%s)\n",
				info.Width, info.Height, info.FPS, info.VideoCodec, info.PixelFormat)
		}
		if info.HasAudio {
			fmt.Printf("audio:     %s\n", info.AudioCodec)
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	},
}
