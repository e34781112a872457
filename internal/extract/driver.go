// Package extract implements the feature-extraction driver: a 4-stage
// pipeline (Load -> Extract -> PostProcess -> Write) that turns a list of
// image paths into one .isat_feat IDC file per image.
package extract

import (
	"context"
	"os"
	"path/filepath"
	"runtime"

	"github.com/insightpipe/isat/internal/apperrors"
	"github.com/insightpipe/isat/internal/config"
	"github.com/insightpipe/isat/internal/idc"
	"github.com/insightpipe/isat/internal/imageio"
	"github.com/insightpipe/isat/internal/model"
	"github.com/insightpipe/isat/internal/pipeline"
	"github.com/insightpipe/isat/internal/telemetry"
)

// GPUExtractor is the opaque external service boundary:
// extract(image) -> (keypoints, descriptors). Startup/Shutdown bracket the
// pinned stage's lifetime so an implementation backed by a real OpenGL/CUDA
// context can acquire/release it exactly once per process.
type GPUExtractor interface {
	Startup() error
	Shutdown()
	Extract(ctx context.Context, gray []byte, w, h int) ([]model.Keypoint, []float32, error)
}

// ImageSpec is one entry from the extraction input's image list.
type ImageSpec struct {
	Path     string
	CameraID int
}

// Result reports one image's outcome.
type Result struct {
	Index      int
	ImagePath  string
	OutputPath string
	Err        error
}

// Driver runs the extraction pipeline end to end.
type Driver struct {
	cfg       config.Extraction
	extractor GPUExtractor
	logger    telemetry.Logger
	hook      telemetry.StageHook
}

// NewDriver creates a Driver. extractor is typically *cpuref.Extractor in
// GPU-less runs, or a real GPU-backed implementation in production.
func NewDriver(cfg config.Extraction, extractor GPUExtractor, logger telemetry.Logger, hook telemetry.StageHook) *Driver {
	if logger == nil {
		logger = telemetry.Noop
	}
	return &Driver{cfg: cfg, extractor: extractor, logger: logger, hook: hook}
}

// Run extracts features for every image in images, writing one
// "<basename>.isat_feat" IDC file per image into outDir. Results are
// returned in input order regardless of the order stages completed in.
func (d *Driver) Run(ctx context.Context, images []ImageSpec, outDir string) ([]Result, error) {
	n := len(images)
	tasks := make([]*model.ImageTask, n)
	results := make([]Result, n)
	for i, spec := range images {
		tasks[i] = &model.ImageTask{Index: i, ImagePath: spec.Path, CameraID: spec.CameraID}
		results[i] = Result{Index: i, ImagePath: spec.Path}
	}

	if n == 0 {
		return results, nil
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInputMissing, "extract.run", err)
	}

	load := pipeline.NewStage("load", d.cfg.LoadQueueCap, d.cfg.LoadWorkers, d.hook)
	extractStage := pipeline.NewPinnedStage("extract", d.cfg.GPUQueueCap, d.hook)
	post := pipeline.NewStage("post", d.cfg.LoadQueueCap, d.cfg.PostWorkers, d.hook)
	write := pipeline.NewStage("write", d.cfg.WriteQueueCap, d.cfg.WriteWorkers, d.hook)

	pipeline.Chain(load, extractStage)
	pipeline.Chain(extractStage, post)
	pipeline.Chain(post, write)

	load.SetTaskCount(n)
	extractStage.SetTaskCount(n)
	post.SetTaskCount(n)
	write.SetTaskCount(n)

	load.Start(ctx, d.loadTask(tasks))
	post.Start(ctx, d.postTask(tasks))
	write.Start(ctx, d.writeTask(tasks, results, outDir))

	extractDone := make(chan struct{})
	go func() {
		// The pinned stage owns a thread-affine context for its entire
		// run; LockOSThread keeps the goroutine-to-thread binding stable
		// so that contract holds even though Go goroutines are not
		// normally pinned to one OS thread.
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		sharedNativeContext.Acquire()
		defer sharedNativeContext.Release()
		if err := d.extractor.Startup(); err != nil {
			d.logger.Error("extract.gpu_unavailable", "error", err.Error())
		}
		defer d.extractor.Shutdown()
		extractStage.Run(ctx, d.extractTask(tasks))
		close(extractDone)
	}()

	load.Wait()
	extractStage.Wait()
	post.Wait()
	write.Wait()

	load.Join()
	post.Join()
	write.Join()
	<-extractDone

	return results, nil
}

func (d *Driver) loadTask(tasks []*model.ImageTask) pipeline.TaskFunc {
	return func(_ context.Context, index int) error {
		t := tasks[index]
		raw, err := os.ReadFile(t.ImagePath)
		if err != nil {
			t.Err = apperrors.Wrap(apperrors.KindInputMissing, "extract.load", err)
			return t.Err
		}
		gray, err := imageio.Decode(raw)
		if err != nil {
			t.Err = err
			return err
		}
		t.Width, t.Height, t.Gray = gray.Width, gray.Height, gray.Pix
		return nil
	}
}

func (d *Driver) extractTask(tasks []*model.ImageTask) pipeline.TaskFunc {
	return func(ctx context.Context, index int) error {
		t := tasks[index]
		if t.Err != nil {
			return t.Err // failed decode: skip remaining stages for this index
		}
		kps, descs, err := d.extractor.Extract(ctx, t.Gray, t.Width, t.Height)
		if err != nil {
			t.Err = apperrors.Fatal("extract.gpu", err)
			return t.Err
		}
		t.Gray = nil // pixels no longer needed past the GPU stage
		t.Features = model.FeatureSet{
			NumFeatures:    len(kps),
			Keypoints:      kps,
			DescriptorType: model.DescriptorFloat32,
			DescriptorsF32: descs,
		}
		return nil
	}
}

func (d *Driver) postTask(tasks []*model.ImageTask) pipeline.TaskFunc {
	return func(_ context.Context, index int) error {
		t := tasks[index]
		if t.Err != nil {
			return t.Err
		}

		responses := make([]float64, t.Features.NumFeatures)
		for i, kp := range t.Features.Keypoints {
			responses[i] = float64(kp.Scale)
		}
		kps, descs := SpatialNMS(t.Features.Keypoints, model.DescriptorDim, t.Features.DescriptorsF32,
			responses, t.Width, t.Height, d.cfg.NMSRadius, d.cfg.NMSKeepPerCell, d.cfg.NMSKeepOrientation)
		t.Features.Keypoints = kps
		t.Features.DescriptorsF32 = descs
		t.Features.NumFeatures = len(kps)

		ApplyNormalization(&t.Features, d.cfg.Normalization, d.cfg.Quantize, d.cfg.QuantizationScale)
		return nil
	}
}

func (d *Driver) writeTask(tasks []*model.ImageTask, results []Result, outDir string) pipeline.TaskFunc {
	return func(_ context.Context, index int) error {
		t := tasks[index]
		if t.Err != nil {
			results[index].Err = t.Err
			d.logger.Warn("extract.skip", "image", t.ImagePath, "error", t.Err.Error())
			return nil // per-task errors are absorbed, not surfaced
		}
		if t.Features.NumFeatures == 0 {
			d.logger.Warn("extract.degenerate", "image", t.ImagePath)
			return nil // DegenerateResult: emit no output file
		}

		w := idc.NewWriter("feature_extraction")
		w.SetAlgorithm("isat-extract-cpuref", "1.0", nil)
		w.SetMetadataField("image_path", t.ImagePath)

		schema := idc.DescriptorSchema{
			FeatureType:   "sift",
			DescriptorDim: model.DescriptorDim,
		}
		if t.Features.DescriptorType == model.DescriptorUint8 {
			schema.DescriptorDtype = "uint8"
			schema.QuantizationScale = t.Features.QuantizationScale
		} else {
			schema.DescriptorDtype = "float32"
		}
		schema.Normalization = d.cfg.Normalization
		w.SetDescriptorSchema(schema)

		n := t.Features.NumFeatures
		flatKP := make([]float32, 0, n*4)
		for _, kp := range t.Features.Keypoints {
			flatKP = append(flatKP, kp.X, kp.Y, kp.Scale, kp.Orientation)
		}
		if err := w.AddBlob("keypoints", "float32", []int{n, 4}, idc.EncodeF32(flatKP)); err != nil {
			return apperrors.Wrap(apperrors.KindCorrupt, "extract.write", err)
		}

		if t.Features.DescriptorType == model.DescriptorUint8 {
			if err := w.AddBlob("descriptors", "uint8", []int{n, model.DescriptorDim}, t.Features.DescriptorsU8); err != nil {
				return apperrors.Wrap(apperrors.KindCorrupt, "extract.write", err)
			}
		} else {
			if err := w.AddBlob("descriptors", "float32", []int{n, model.DescriptorDim}, idc.EncodeF32(t.Features.DescriptorsF32)); err != nil {
				return apperrors.Wrap(apperrors.KindCorrupt, "extract.write", err)
			}
		}

		base := filepath.Base(t.ImagePath)
		ext := filepath.Ext(base)
		outPath := filepath.Join(outDir, base[:len(base)-len(ext)]+".isat_feat")
		if err := w.Write(outPath); err != nil {
			results[index].Err = apperrors.Wrap(apperrors.KindCorrupt, "extract.write", err)
			return results[index].Err
		}
		results[index].OutputPath = outPath
		t.Features = model.FeatureSet{} // release descriptor memory
		return nil
	}
}

