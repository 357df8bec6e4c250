package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"image-compressor-go/internal/batch"
	"image-compressor-go/internal/compressor"
	"image-compressor-go/internal/config"
	"image-compressor-go/internal/export"
	"image-compressor-go/internal/logger"
	"image-compressor-go/internal/metadata"
	"image-compressor-go/internal/statistics"
	"image-compressor-go/internal/validate"
	"image-compressor-go/internal/web"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile          string
	verbose          bool
	quiet            bool
	version          = "dev"
	buildTime        = "unknown"
	port             int
	quality          int
	targetKB         int
	outputDir        string
	prefix           string
	preserveMetadata bool
	overwrite        bool
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "image-compressor",
	Short: "Shrink JPEG images to a quality or a file size",
	Long: `image-compressor re-encodes JPEG images either at a chosen quality or
searching for the highest quality that fits a target file size.

Features:
- Quality mode with automatic downscaling at lower qualities
- Target size mode using a bounded binary search over quality
- Sequential batch processing with progress reporting
- Optional metadata pass-through via exiftool
- HTTP API with WebSocket progress and Prometheus metrics`,
	SilenceUsage: true,
}

// compressCmd compresses files and directories of images.
var compressCmd = &cobra.Command{
	Use:   "compress <files or directories...>",
	Short: "Compress images and write the results to the output directory",
	Long: `Compress every given file, and every .jpg/.jpeg file inside given directories.
Use --quality for quality mode or --target-kb for target size mode; without
either the mode from the config file applies.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompress(cmd, args)
	},
}

// inspectCmd shows dimensions and EXIF metadata of a file.
var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Show image dimensions and metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspect(args[0])
	},
}

// serveCmd starts the HTTP API server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Starts an HTTP server exposing the compressor:
- POST /api/compress   single image, returns the JPEG
- POST /api/batch      several images, returns JSON results
- GET  /ws             WebSocket batch progress
- GET  /metrics        Prometheus metrics`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

// versionCmd prints build information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("image-compressor %s (built %s)\n", version, buildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")

	compressCmd.Flags().IntVarP(&quality, "quality", "q", 80, "quality 1-100 (quality mode)")
	compressCmd.Flags().IntVarP(&targetKB, "target-kb", "t", 0, "target size in KB (target size mode)")
	compressCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory")
	compressCmd.Flags().StringVar(&prefix, "prefix", "", "output file name prefix")
	compressCmd.Flags().BoolVar(&preserveMetadata, "preserve-metadata", false, "copy EXIF/GPS tags to the output (requires exiftool)")
	compressCmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace existing output files")

	serveCmd.Flags().IntVar(&port, "port", 0, "port to run web server on (default from config)")

	rootCmd.AddCommand(compressCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// runCompress executes a batch over the given paths.
func runCompress(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyCompressFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	req, err := cfg.Request()
	if err != nil {
		return err
	}

	log := setupLogger(cfg)
	encoder, err := cfg.NewEncoder()
	if err != nil {
		return err
	}
	engine := compressor.NewEngine(encoder, cfg.EngineSettings(), log)
	stats := statistics.NewStatistics()
	checker := validate.NewChecker(cfg.Upload.MaxFileSize, cfg.Upload.AllowedMIME)
	processor := batch.NewProcessor(engine, log, stats).WithChecker(checker)

	paths, err := batch.Discover(args, batch.DefaultExtensions, log)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		log.Info("No images found to compress")
		return nil
	}

	writer := &export.Writer{
		Dir:              cfg.Output.Directory,
		Prefix:           cfg.Output.Prefix,
		Extension:        cfg.Output.Extension,
		Overwrite:        overwrite,
		PreserveMetadata: cfg.Compression.PreserveMetadata,
		Logger:           log,
	}
	if writer.PreserveMetadata {
		copier, err := metadata.NewExiftoolCopier(log)
		if err != nil {
			log.Warnf("Metadata will not be preserved: %v", err)
		} else {
			defer copier.Close()
			writer.Copier = copier
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var progress batch.ProgressFunc
	if cfg.Performance.ShowProgress && !quiet {
		progress = func(p batch.Progress) {
			fmt.Fprintf(os.Stderr, "[%d/%d] %3.0f%% %s\n", p.Index+1, p.Total, p.Fraction*100, p.Name)
		}
	}

	out := io.Writer(os.Stdout)
	if quiet {
		out = io.Discard
	}
	compressFiles(ctx, processor, writer, paths, req, progress, out, os.Stderr)

	stats.Finalize()
	log.WithFields(logrus.Fields{
		"duration": stats.GetDuration().String(),
		"failed":   stats.GetImagesFailed(),
	}).Info("Compression finished")
	if !quiet {
		fmt.Println("\n" + stats.GetSummary())
		if len(stats.Snapshot().Errors) > 0 {
			fmt.Println("\n" + stats.GetErrorSummary())
		}
	}

	return nil
}

// compressFiles reads, compresses and writes one path at a time. Each output
// is on disk before the next file is read.
func compressFiles(ctx context.Context, processor *batch.Processor, writer *export.Writer, paths []string, req compressor.Request, progress batch.ProgressFunc, out, errOut io.Writer) []batch.ItemResult {
	load := func(i int) (compressor.SourceImage, error) {
		data, err := os.ReadFile(paths[i])
		if err != nil {
			return compressor.SourceImage{}, fmt.Errorf("could not read %s: %w", paths[i], err)
		}
		return compressor.SourceImage{Name: paths[i], Data: data}, nil
	}
	store := func(i int, res batch.ItemResult) error {
		if !res.OK() {
			fmt.Fprintf(errOut, "%s: %v\n", res.Name, res.Err)
			return nil
		}
		target, err := writer.Write(paths[i], res)
		if err != nil {
			fmt.Fprintf(errOut, "%s: %v\n", res.Name, err)
			return err
		}
		fmt.Fprintf(out, "%s -> %s\n", formatResult(res), target)
		return nil
	}
	return processor.RunStream(ctx, paths, load, req, store, progress)
}

// applyCompressFlags overrides config values with flags that were set explicitly.
func applyCompressFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("target-kb") {
		cfg.Compression.Mode = compressor.ModeTargetSize.String()
		cfg.Compression.TargetSizeKB = targetKB
	} else if flags.Changed("quality") {
		cfg.Compression.Mode = compressor.ModeQuality.String()
		cfg.Compression.Quality = quality
	}
	if flags.Changed("output") {
		cfg.Output.Directory = outputDir
	}
	if flags.Changed("prefix") {
		cfg.Output.Prefix = prefix
	}
	if flags.Changed("preserve-metadata") {
		cfg.Compression.PreserveMetadata = preserveMetadata
	}
}

// formatResult renders one line such as "a.jpg: 512.0 KB -> 97.1 KB (81.0%) q=42".
func formatResult(res batch.ItemResult) string {
	line := fmt.Sprintf("%s: %s -> %s (%.1f%%) q=%d",
		res.Name,
		statistics.FormatBytes(int64(res.OriginalSize)),
		statistics.FormatBytes(int64(res.CompressedSize)),
		res.Ratio,
		res.QualityUsed)
	if res.FellBack {
		line += " fallback"
	}
	return line
}

// runInspect prints the metadata summary of a file.
func runInspect(filePath string) error {
	if !fileExists(filePath) {
		return fmt.Errorf("file does not exist: %s", filePath)
	}

	log := logrus.New()
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	summary, err := metadata.NewInspector(log).Inspect(filePath)
	if err != nil {
		return err
	}

	fmt.Printf("File:        %s\n", filePath)
	fmt.Printf("Format:      %s\n", summary.Format)
	fmt.Printf("Size:        %s\n", statistics.FormatBytes(summary.Size))
	fmt.Printf("Dimensions:  %dx%d\n", summary.Width, summary.Height)
	if !summary.HasEXIF {
		fmt.Println("EXIF:        none")
		return nil
	}
	fmt.Printf("Camera:      %s %s\n", summary.Make, summary.Model)
	if summary.Software != "" {
		fmt.Printf("Software:    %s\n", summary.Software)
	}
	if summary.DateTime != nil {
		fmt.Printf("Taken:       %s\n", summary.DateTime.Format("2006-01-02 15:04:05"))
	}
	if summary.Orientation != 0 {
		fmt.Printf("Orientation: %d\n", summary.Orientation)
	}
	fmt.Printf("GPS:         %t\n", summary.HasGPS)
	return nil
}

// runServe starts the web server and handles graceful shutdown.
func runServe(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = port
	}

	log := setupLogger(cfg)
	encoder, err := cfg.NewEncoder()
	if err != nil {
		return err
	}
	engine := compressor.NewEngine(encoder, cfg.EngineSettings(), log)
	server := web.NewServer(cfg, log, engine)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := server.Start(cfg.Server.Port); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	fmt.Printf("Image compressor API listening on http://localhost:%d\n", cfg.Server.Port)
	fmt.Printf("Press Ctrl+C to stop the server\n\n")

	<-sigChan
	fmt.Println("\nShutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	fmt.Println("Server stopped gracefully")
	return nil
}

// setupLogger configures and returns a logger.
func setupLogger(cfg *config.Config) *logrus.Logger {
	loggerCfg := logger.LoggerConfig{
		Level:      cfg.Logging.Level,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
		Console:    !quiet,
	}

	if verbose {
		loggerCfg.Level = "debug"
	}
	if quiet {
		loggerCfg.Level = "error"
	}

	log, err := logger.NewLogger(loggerCfg)
	if err != nil {
		log = logrus.New()
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

// fileExists returns true if the given path exists and is a file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
