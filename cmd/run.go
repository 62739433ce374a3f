package cmd

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-mcdetect/controller"
	"github.com/nvr-ai/go-mcdetect/detector"
	"github.com/nvr-ai/go-mcdetect/inference"
	"github.com/nvr-ai/go-mcdetect/models"
	"github.com/nvr-ai/go-mcdetect/models/model"
	"github.com/nvr-ai/go-mcdetect/models/postprocess"
	"github.com/nvr-ai/go-mcdetect/models/postprocess/opencv"
	"github.com/nvr-ai/go-mcdetect/pipeline"
	"github.com/nvr-ai/go-mcdetect/profiler"
)

type runOptions struct {
	suppressor     string
	maxFrames      uint64
	reportInterval time.Duration
	threads        int
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the detection callback on the configured cameras with onnxruntime",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLocal(cmd.Context(), runOpts)
	},
}

func init() {
	runCmd.Flags().StringVar(&runOpts.suppressor, "suppressor", "greedy", "overlap suppression backend: greedy or opencv")
	runCmd.Flags().Uint64Var(&runOpts.maxFrames, "max-frames", 0, "stop each stream after this many frames (0: unlimited)")
	runCmd.Flags().DurationVar(&runOpts.reportInterval, "profile-interval", 10*time.Second, "interval between profiler reports")
	runCmd.Flags().IntVar(&runOpts.threads, "threads", 0, "onnxruntime threads per session (0: runtime default)")
	rootCmd.AddCommand(runCmd)
}

func newSuppressor(name string) (postprocess.Suppressor, error) {
	switch name {
	case "", "greedy":
		return postprocess.Greedy, nil
	case "opencv":
		return opencv.New(), nil
	default:
		return nil, errors.Errorf("unknown suppressor %q", name)
	}
}

func runLocal(ctx context.Context, opts runOptions) (err error) {
	if cfg.ONNXModelPath == "" {
		return errors.New("onnx_model_path is required to run locally")
	}

	suppressor, err := newSuppressor(opts.suppressor)
	if err != nil {
		return err
	}

	prof := profiler.NewRuntimeProfiler(profiler.ProfilingOptions{
		ReportInterval: opts.reportInterval,
		Logger:         logger.Named("profiler"),
	})
	prof.Start()
	defer prof.Stop()

	nms := cfg.NMSConfig()
	m, err := models.NewModel(model.NewModelArgs{
		Name:                model.ModelNameYOLOv8,
		Path:                cfg.ONNXModelPath,
		NumClasses:          cfg.Detection.NumClasses,
		ConfidenceThreshold: &cfg.Detection.ConfidenceThreshold,
		NMS:                 &nms,
		Suppressor:          suppressor,
	})
	if err != nil {
		return err
	}

	labels, err := models.ParseLabelMode(cfg.Detection.Labels)
	if err != nil {
		return err
	}
	processor, err := detector.New(detector.Config{
		Model:                  m,
		DetectThreshold:        &cfg.Detection.DetectThreshold,
		EnforceDetectThreshold: cfg.Detection.EnforceDetectThreshold,
		Labels:                 labels,
		Logger:                 logger.Named("detector"),
		Profiler:               prof,
	})
	if err != nil {
		return err
	}

	registry := pipeline.NewRegistry(logger.Named("pipeline"))
	if err := detector.Register(registry, processor); err != nil {
		return err
	}

	if err := inference.InitializeRuntime(cfg.ONNXRuntimeLibrary); err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, inference.DestroyRuntime())
	}()

	streams, err := openStreams(opts)
	if err != nil {
		return err
	}

	ctrlCfg := controller.Config{
		Streams:   streams,
		Registry:  registry,
		Logger:    logger.Named("controller"),
		Profiler:  prof,
		MaxFrames: opts.maxFrames,
	}

	if !cfg.Display {
		ctrl, err := controller.New(ctrlCfg)
		if err != nil {
			closeStreams(streams)
			return err
		}
		return ctrl.Run(ctx)
	}

	mosaic, err := controller.NewMosaic(len(streams))
	if err != nil {
		closeStreams(streams)
		return err
	}
	defer func() {
		err = multierr.Append(err, mosaic.Close())
	}()
	ctrlCfg.Sink = mosaic

	ctrl, err := controller.New(ctrlCfg)
	if err != nil {
		closeStreams(streams)
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- ctrl.Run(ctx)
		cancel()
	}()

	mosaic.Display(ctx, "mcdetect", 40*time.Millisecond)
	cancel()
	return <-done
}

func openStreams(opts runOptions) ([]controller.Stream, error) {
	var streams []controller.Stream
	for _, cam := range cfg.ActiveCameras() {
		src, err := controller.OpenCaptureSource(cam.URL)
		if err != nil {
			closeStreams(streams)
			return nil, err
		}

		session, err := inference.NewSession(inference.SessionConfig{
			ModelPath:      cfg.ONNXModelPath,
			Device:         cfg.InferenceDevice,
			NumClasses:     cfg.Detection.NumClasses,
			IntraOpThreads: opts.threads,
		})
		if err != nil {
			_ = src.Close()
			closeStreams(streams)
			return nil, err
		}

		logger.Info("stream opened", zap.String("camera", cam.Name), zap.String("url", cam.URL))
		streams = append(streams, controller.Stream{Name: cam.Name, Source: src, Inferer: session})
	}
	return streams, nil
}

func closeStreams(streams []controller.Stream) {
	for _, s := range streams {
		s.Inferer.Close()
		if err := s.Source.Close(); err != nil {
			logger.Warn("close stream", zap.String("camera", s.Name), zap.Error(err))
		}
	}
}
