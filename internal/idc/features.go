package idc

import (
	"github.com/insightpipe/isat/internal/apperrors"
	"github.com/insightpipe/isat/internal/model"
)

// ReadFeatureSet loads a .isat_feat file's keypoints and descriptors into
// a model.FeatureSet, dispatching on the "descriptors" blob's declared
// dtype rather than probing ReadBlobU8/ReadBlobF32 in turn — both readers
// happily return non-nil bytes for either on-disk dtype, so probing can't
// tell them apart.
func ReadFeatureSet(path string) (model.FeatureSet, error) {
	r, err := Open(path)
	if err != nil {
		return model.FeatureSet{}, err
	}
	return featureSetFromReader(r)
}

func featureSetFromReader(r *Reader) (model.FeatureSet, error) {
	kpFlat, err := r.ReadBlobF32("keypoints")
	if err != nil {
		return model.FeatureSet{}, err
	}
	if len(kpFlat)%4 != 0 {
		return model.FeatureSet{}, apperrors.New(apperrors.KindCorrupt, "idc.read_feature_set", apperrors.ErrUnalignedBlobSize)
	}
	n := len(kpFlat) / 4
	kps := make([]model.Keypoint, n)
	for i := 0; i < n; i++ {
		kps[i] = model.Keypoint{
			X:           kpFlat[i*4],
			Y:           kpFlat[i*4+1],
			Scale:       kpFlat[i*4+2],
			Orientation: kpFlat[i*4+3],
		}
	}

	fs := model.FeatureSet{NumFeatures: n, Keypoints: kps}

	bd, ok := r.findBlob("descriptors")
	if !ok {
		return model.FeatureSet{}, apperrors.New(apperrors.KindCorrupt, "idc.read_feature_set", apperrors.ErrEmptyInput)
	}

	if bd.Dtype == "uint8" {
		u8, err := r.ReadBlobU8("descriptors")
		if err != nil {
			return model.FeatureSet{}, err
		}
		fs.DescriptorType = model.DescriptorUint8
		fs.DescriptorsU8 = u8
		if r.Descriptor().DescriptorSchema != nil {
			fs.QuantizationScale = r.Descriptor().DescriptorSchema.QuantizationScale
		}
		return fs, nil
	}

	f32, err := r.ReadBlobF32("descriptors")
	if err != nil {
		return model.FeatureSet{}, err
	}
	fs.DescriptorType = model.DescriptorFloat32
	fs.DescriptorsF32 = f32
	return fs, nil
}
