package retrieval

import (
	"context"

	"github.com/insightpipe/isat/internal/model"
	"github.com/insightpipe/isat/internal/retrieval/vocab"
)

// VocabStrategy pairs images by bag-of-words similarity over a
// pre-trained visual-word vocabulary.
type VocabStrategy struct {
	Vocab *vocab.Vocabulary
	TopK  int
	Load  FeatureLoader
}

func (VocabStrategy) Name() string { return "vocab" }

// Run computes a TF-IDF BoW vector per image, adds each to a temporary
// database, then queries that database for every image's top-K nearest
// neighbors by BoW similarity (excluding itself).
func (s VocabStrategy) Run(_ context.Context, images []model.ImageInfo) ([]model.ImagePair, error) {
	db := vocab.NewDatabase(s.Vocab)

	bows := make([]vocab.BoWVector, len(images))
	indexByID := make(map[string]int, len(images))
	for i, img := range images {
		fs, err := s.Load(img.FeatureFile)
		if err != nil || fs.NumFeatures == 0 {
			continue
		}
		bow := s.Vocab.ComputeBoW(fs.DescriptorAt, fs.NumFeatures)
		bows[i] = bow
		indexByID[img.ImageID] = i
		db.AddImage(img.ImageID, bow)
	}

	seen := map[[2]int]bool{}
	var out []model.ImagePair
	for i, img := range images {
		if bows[i] == nil {
			continue
		}
		for _, r := range db.Query(bows[i], s.TopK, img.ImageID) {
			j, ok := indexByID[r.ID]
			if !ok {
				continue
			}
			a, b := i, j
			if a > b {
				a, b = b, a
			}
			key := [2]int{a, b}
			if seen[key] {
				continue
			}
			seen[key] = true
			score := r.Score
			out = append(out, model.ImagePair{
				Image1Idx: a,
				Image2Idx: b,
				Score:     score,
				Method:    "vocab",
			})
		}
	}
	return out, nil
}
