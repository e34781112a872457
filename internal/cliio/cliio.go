// Package cliio reads and writes the three CLI tools' JSON interchange
// files: the extraction tool's image list, and the retrieval/matching
// tools' shared pair list.
package cliio

import (
	"encoding/json"
	"math"
	"os"

	"github.com/insightpipe/isat/internal/apperrors"
	"github.com/insightpipe/isat/internal/model"
)

// gnssJSON mirrors the image-list interface's gnss object.
type gnssJSON struct {
	X, Y, Z                      float64
	CovXX                        float64 `json:"cov_xx,omitempty"`
	CovYY                        float64 `json:"cov_yy,omitempty"`
	CovZZ                        float64 `json:"cov_zz,omitempty"`
	CovXY                        float64 `json:"cov_xy,omitempty"`
	CovXZ                        float64 `json:"cov_xz,omitempty"`
	CovYZ                        float64 `json:"cov_yz,omitempty"`
	NumSatellites                int     `json:"num_satellites,omitempty"`
	HDOP                         float64 `json:"hdop,omitempty"`
	VDOP                         float64 `json:"vdop,omitempty"`
}

// imuJSON mirrors the image-list interface's imu object: degrees at the
// boundary, converted to radians in model.IMU.
type imuJSON struct {
	Roll, Pitch, Yaw             float64
	CovAttXX                     float64 `json:"cov_att_xx,omitempty"`
	CovAttYY                     float64 `json:"cov_att_yy,omitempty"`
	CovAttZZ                     float64 `json:"cov_att_zz,omitempty"`
}

type imageEntry struct {
	Path     string    `json:"path"`
	CameraID int       `json:"camera_id,omitempty"`
	GNSS     *gnssJSON `json:"gnss,omitempty"`
	IMU      *imuJSON  `json:"imu,omitempty"`
}

type imageListFile struct {
	Images []imageEntry `json:"images"`
}

// LoadImageList parses an extraction-input image list and converts its
// GNSS/IMU fixes into model types, degrees-to-radians at this boundary.
func LoadImageList(path string) ([]model.ImageInfo, []string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.KindInputMissing, "cliio.load_image_list", err)
	}
	var f imageListFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, nil, apperrors.Wrap(apperrors.KindCorrupt, "cliio.load_image_list", err)
	}

	infos := make([]model.ImageInfo, len(f.Images))
	paths := make([]string, len(f.Images))
	for i, e := range f.Images {
		paths[i] = e.Path
		info := model.ImageInfo{ImageID: e.Path, CameraID: e.CameraID}
		if e.GNSS != nil {
			info.GNSS = &model.GNSS{
				X: e.GNSS.X, Y: e.GNSS.Y, Z: e.GNSS.Z,
				CovXX: e.GNSS.CovXX, CovYY: e.GNSS.CovYY, CovZZ: e.GNSS.CovZZ,
				CovXY: e.GNSS.CovXY, CovXZ: e.GNSS.CovXZ, CovYZ: e.GNSS.CovYZ,
				NumSatellites: e.GNSS.NumSatellites, HDOP: e.GNSS.HDOP, VDOP: e.GNSS.VDOP,
			}
		}
		if e.IMU != nil {
			info.IMU = &model.IMU{
				Roll:  e.IMU.Roll * math.Pi / 180,
				Pitch: e.IMU.Pitch * math.Pi / 180,
				Yaw:   e.IMU.Yaw * math.Pi / 180,
				CovAttXX: e.IMU.CovAttXX, CovAttYY: e.IMU.CovAttYY, CovAttZZ: e.IMU.CovAttZZ,
			}
		}
		infos[i] = info
	}
	return infos, paths, nil
}

// pairEntry mirrors one entry of the retrieval<->matching pair-list JSON.
type pairEntry struct {
	Image1ID         string   `json:"image1_id"`
	Image2ID         string   `json:"image2_id"`
	Feature1File     string   `json:"feature1_file"`
	Feature2File     string   `json:"feature2_file"`
	Score            float64  `json:"score"`
	Method           string   `json:"method"`
	Priority         float64  `json:"priority,omitempty"`
	SpatialDistance  *float64 `json:"spatial_distance,omitempty"`
	VisualSimilarity *float64 `json:"visual_similarity,omitempty"`
	AngleDifference  *float64 `json:"angle_difference,omitempty"`
}

type pairListFile struct {
	SchemaVersion   string      `json:"schema_version"`
	RetrievalMethod string      `json:"retrieval_method"`
	Pairs           []pairEntry `json:"pairs"`
}

// WritePairList serializes pairs to the retrieval<->matching pair-list
// format, resolving each ImagePair's indices to image ids and feature
// files via images/featureFiles.
func WritePairList(path, retrievalMethod string, pairs []model.ImagePair, images []model.ImageInfo, featureFiles []string) error {
	entries := make([]pairEntry, len(pairs))
	for i, p := range pairs {
		entries[i] = pairEntry{
			Image1ID:         images[p.Image1Idx].ImageID,
			Image2ID:         images[p.Image2Idx].ImageID,
			Feature1File:     featureFiles[p.Image1Idx],
			Feature2File:     featureFiles[p.Image2Idx],
			Score:            p.Score,
			Method:           p.Method,
			SpatialDistance:  p.SpatialDistance,
			VisualSimilarity: p.VisualSimilarity,
			AngleDifference:  p.AngleDifference,
		}
	}
	f := pairListFile{SchemaVersion: "1.0", RetrievalMethod: retrievalMethod, Pairs: entries}
	buf, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return apperrors.Wrap(apperrors.KindCorrupt, "cliio.write_pair_list", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return apperrors.Wrap(apperrors.KindCorrupt, "cliio.write_pair_list", err)
	}
	return nil
}

// PairSpec is one parsed pair-list entry, ready for the matching driver.
type PairSpec struct {
	Image1ID, Image2ID         string
	Feature1File, Feature2File string
}

// LoadPairList parses a pair-list JSON file for the matching tool.
func LoadPairList(path string) ([]PairSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInputMissing, "cliio.load_pair_list", err)
	}
	var f pairListFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, apperrors.Wrap(apperrors.KindCorrupt, "cliio.load_pair_list", err)
	}
	out := make([]PairSpec, len(f.Pairs))
	for i, e := range f.Pairs {
		out[i] = PairSpec{
			Image1ID: e.Image1ID, Image2ID: e.Image2ID,
			Feature1File: e.Feature1File, Feature2File: e.Feature2File,
		}
	}
	return out, nil
}
