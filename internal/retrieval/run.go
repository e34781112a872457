package retrieval

import (
	"context"

	"github.com/insightpipe/isat/internal/config"
	"github.com/insightpipe/isat/internal/model"
)

// RunCombined runs every strategy against images and merges their output
// with Combine, using cfg's score floor and max-pairs cap.
func RunCombined(ctx context.Context, strategies []Strategy, images []model.ImageInfo, cfg config.Retrieval) ([]model.ImagePair, error) {
	lists := make([][]model.ImagePair, 0, len(strategies))
	for _, s := range strategies {
		pairs, err := s.Run(ctx, images)
		if err != nil {
			return nil, err
		}
		lists = append(lists, pairs)
	}
	return Combine(lists, cfg.ScoreFloor, cfg.MaxPairs), nil
}
