package batch

import (
	"context"
	"fmt"
	"time"

	"image-compressor-go/internal/compressor"
	"image-compressor-go/internal/logger"
	"image-compressor-go/internal/metrics"
	"image-compressor-go/internal/statistics"

	"github.com/sirupsen/logrus"
)

// LogHookFunc receives user-facing log lines, e.g. for a WebSocket feed.
type LogHookFunc func(level, message string)

// ProgressFunc is called after every image of a batch, failed ones included.
type ProgressFunc func(Progress)

// LoadFunc reads the i-th input of a streamed batch.
type LoadFunc func(i int) (compressor.SourceImage, error)

// ResultFunc receives the i-th result of a streamed batch, failed ones
// included, before the next input is loaded. An error is recorded on the item.
type ResultFunc func(i int, res ItemResult) error

// Checker rejects inputs before they reach the engine.
type Checker interface {
	Check(name string, data []byte) error
}

// Progress reports how far a batch has advanced.
type Progress struct {
	Index    int     `json:"index"`
	Total    int     `json:"total"`
	Fraction float64 `json:"fraction"`
	Name     string  `json:"name"`
	Err      error   `json:"-"`
}

// ItemResult is the outcome for one image of a batch.
type ItemResult struct {
	Name           string
	OriginalSize   int
	CompressedSize int
	QualityUsed    int
	Ratio          float64
	Attempts       int
	FellBack       bool
	Data           []byte
	Width          int
	Height         int
	Err            error
}

// OK reports whether the image was compressed and stored.
func (r ItemResult) OK() bool {
	return r.Err == nil
}

// Processor compresses images one after another in submission order.
type Processor struct {
	engine  *compressor.Engine
	logger  *logrus.Logger
	stats   *statistics.Statistics
	checker Checker
	logHook LogHookFunc
}

// NewProcessor returns a new Processor.
func NewProcessor(engine *compressor.Engine, log *logrus.Logger, stats *statistics.Statistics) *Processor {
	return NewProcessorWithLogHook(engine, log, stats, nil)
}

// NewProcessorWithLogHook returns a Processor that also forwards log lines to hook.
func NewProcessorWithLogHook(engine *compressor.Engine, log *logrus.Logger, stats *statistics.Statistics, hook LogHookFunc) *Processor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if stats == nil {
		stats = statistics.NewStatistics()
	}
	return &Processor{
		engine:  engine,
		logger:  log,
		stats:   stats,
		logHook: hook,
	}
}

// WithChecker sets the validation gate applied before each compression.
func (p *Processor) WithChecker(c Checker) *Processor {
	p.checker = c
	return p
}

// Stats returns the statistics the processor writes to.
func (p *Processor) Stats() *statistics.Statistics {
	return p.stats
}

// Run compresses items sequentially. A failing image does not stop the batch.
// Once ctx is done the remaining items are marked with ctx.Err().
func (p *Processor) Run(ctx context.Context, items []compressor.SourceImage, req compressor.Request, progress ProgressFunc) []ItemResult {
	names := make([]string, len(items))
	for i, item := range items {
		names[i] = item.Name
	}
	load := func(i int) (compressor.SourceImage, error) {
		return items[i], nil
	}
	return p.run(ctx, names, load, req, nil, progress)
}

// RunStream is Run for inputs that are read on demand. Each input is loaded
// when its turn comes and its result goes to handle before the next one is
// loaded; the returned results carry no Data.
func (p *Processor) RunStream(ctx context.Context, names []string, load LoadFunc, req compressor.Request, handle ResultFunc, progress ProgressFunc) []ItemResult {
	if handle == nil {
		handle = func(int, ItemResult) error { return nil }
	}
	return p.run(ctx, names, load, req, handle, progress)
}

func (p *Processor) run(ctx context.Context, names []string, load LoadFunc, req compressor.Request, handle ResultFunc, progress ProgressFunc) []ItemResult {
	total := len(names)
	results := make([]ItemResult, total)
	if total == 0 {
		return results
	}

	metrics.BatchStarted()
	defer metrics.BatchFinished()

	p.stats.AddImagesFound(total)
	log := logger.WithOperation(p.logger, "batch")
	log.WithFields(logrus.Fields{"images": total, "mode": req.Mode.String()}).Info("Starting batch")

	for i, name := range names {
		if err := ctx.Err(); err != nil {
			p.abandon(results[i:], names[i:], req, err)
			log.Warnf("Batch cancelled after %d of %d images: %v", i, total, err)
			return results
		}

		item, err := load(i)
		if err != nil {
			entry := logger.WithImageOperation(p.logger, name, "read")
			results[i] = p.fail(ItemResult{Name: name}, req, entry, "read", err)
		} else {
			results[i] = p.Process(item, req)
		}

		if handle != nil {
			if err := handle(i, results[i]); err != nil && results[i].Err == nil {
				results[i].Err = err
				p.stats.AddError(name, "output", err.Error())
				logger.WithImageOperation(p.logger, name, "output").WithError(err).Error("Could not store result")
			}
			results[i].Data = nil
		}

		if progress != nil {
			progress(Progress{
				Index:    i,
				Total:    total,
				Fraction: float64(i+1) / float64(total),
				Name:     name,
				Err:      results[i].Err,
			})
		}
	}

	log.WithField("images", total).Info("Batch completed")
	return results
}

// Process compresses a single image and records it in the statistics.
func (p *Processor) Process(item compressor.SourceImage, req compressor.Request) ItemResult {
	start := time.Now()
	res := ItemResult{Name: item.Name, OriginalSize: item.Size()}
	entry := logger.WithImageOperation(p.logger, item.Name, "compress")

	if p.checker != nil {
		if err := p.checker.Check(item.Name, item.Data); err != nil {
			return p.fail(res, req, entry, "compress", err)
		}
	}

	out, err := p.engine.Compress(item, req)
	if err != nil {
		return p.fail(res, req, entry, "compress", err)
	}

	res.CompressedSize = out.Result.Size
	res.QualityUsed = out.Result.Quality
	res.Ratio = compressor.CompressionRatio(res.OriginalSize, res.CompressedSize)
	res.Attempts = out.Attempts
	res.FellBack = out.FellBack
	res.Data = out.Result.Data
	res.Width = out.Result.Width
	res.Height = out.Result.Height

	p.stats.IncrementMode(req.Mode.String())
	p.stats.RecordResult(res.OriginalSize, res.CompressedSize, res.Attempts, res.FellBack)
	metrics.RecordCompression(req.Mode.String(), time.Since(start).Seconds(),
		res.OriginalSize, res.CompressedSize, res.Attempts, res.FellBack)

	entry = entry.WithFields(logrus.Fields{
		"original_size":   res.OriginalSize,
		"compressed_size": res.CompressedSize,
		"quality":         res.QualityUsed,
		"attempts":        res.Attempts,
		"fallback":        res.FellBack,
	})
	if res.CompressedSize >= res.OriginalSize {
		entry.Warn("Compressed image is not smaller than the source")
	} else {
		entry.Info("Compressed image")
	}
	p.hook("info", fmt.Sprintf("%s: %s -> %s (%.1f%%) q=%d",
		res.Name,
		statistics.FormatBytes(int64(res.OriginalSize)),
		statistics.FormatBytes(int64(res.CompressedSize)),
		res.Ratio, res.QualityUsed))

	return res
}

func (p *Processor) fail(res ItemResult, req compressor.Request, entry *logrus.Entry, operation string, err error) ItemResult {
	res.Err = err
	p.stats.IncrementImagesFailed()
	p.stats.AddError(res.Name, operation, err.Error())
	metrics.RecordCompressionFailure(req.Mode.String(), "error")
	entry.WithError(err).Error("Could not compress image")
	p.hook("error", fmt.Sprintf("%s: %v", res.Name, err))
	return res
}

func (p *Processor) abandon(results []ItemResult, names []string, req compressor.Request, err error) {
	for i, name := range names {
		results[i] = ItemResult{Name: name, Err: err}
		metrics.RecordCompressionFailure(req.Mode.String(), "cancelled")
	}
}

func (p *Processor) hook(level, message string) {
	if p.logHook != nil {
		p.logHook(level, message)
	}
}
