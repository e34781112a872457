// Package vocab implements a minimal TF-IDF bag-of-words facade over a
// flat visual-word vocabulary: Load, AddImage, Query, ClearDatabase,
// DatabaseSize. A real deployment could substitute a hierarchical
// k-means / DBoW-backed vocabulary behind the same surface without
// touching callers.
package vocab

import (
	"encoding/binary"
	"math"
	"os"
	"sort"

	"github.com/insightpipe/isat/internal/apperrors"
)

// Magic identifies a .vocab file: "VOCB" read as LE u32.
const Magic = 0x564F4342

const headerSize = 16 // magic, version, num_words, dim

// Vocabulary is a flat set of visual words plus their trained
// inverse-document-frequency weights.
type Vocabulary struct {
	Version  uint32
	NumWords int
	Dim      int
	Words    []float32 // NumWords*Dim, row-major
	IDF      []float64 // NumWords
}

// LoadVocabulary parses a .vocab file.
func LoadVocabulary(path string) (*Vocabulary, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInputMissing, "vocab.load", err)
	}
	if len(raw) < headerSize {
		return nil, apperrors.New(apperrors.KindCorrupt, "vocab.load", apperrors.ErrTruncated)
	}
	if binary.LittleEndian.Uint32(raw[0:4]) != Magic {
		return nil, apperrors.New(apperrors.KindCorrupt, "vocab.load", apperrors.ErrBadMagic)
	}
	version := binary.LittleEndian.Uint32(raw[4:8])
	numWords := int(binary.LittleEndian.Uint32(raw[8:12]))
	dim := int(binary.LittleEndian.Uint32(raw[12:16]))

	off := headerSize
	want := headerSize + 4*numWords*dim + 8*numWords
	if len(raw) < want {
		return nil, apperrors.New(apperrors.KindCorrupt, "vocab.load", apperrors.ErrTruncated)
	}

	words := make([]float32, numWords*dim)
	for i := range words {
		words[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[off : off+4]))
		off += 4
	}
	idf := make([]float64, numWords)
	for i := range idf {
		idf[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[off : off+8]))
		off += 8
	}

	return &Vocabulary{Version: version, NumWords: numWords, Dim: dim, Words: words, IDF: idf}, nil
}

// Save writes the vocabulary to path in .vocab format.
func (v *Vocabulary) Save(path string) error {
	size := headerSize + 4*len(v.Words) + 8*len(v.IDF)
	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf[0:4], Magic)
	version := v.Version
	if version == 0 {
		version = 1
	}
	binary.LittleEndian.PutUint32(buf[4:8], version)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(v.NumWords))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(v.Dim))

	off := headerSize
	for _, w := range v.Words {
		binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(w))
		off += 4
	}
	for _, x := range v.IDF {
		binary.LittleEndian.PutUint64(buf[off:off+8], math.Float64bits(x))
		off += 8
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return apperrors.Wrap(apperrors.KindCorrupt, "vocab.save", err)
	}
	return nil
}

func (v *Vocabulary) wordAt(k int) []float32 {
	return v.Words[k*v.Dim : (k+1)*v.Dim]
}

func (v *Vocabulary) nearestWord(d []float64) int {
	best, bestDist := 0, math.Inf(1)
	for k := 0; k < v.NumWords; k++ {
		w := v.wordAt(k)
		var sum float64
		for t, x := range d {
			diff := x - float64(w[t])
			sum += diff * diff
		}
		if sum < bestDist {
			bestDist = sum
			best = k
		}
	}
	return best
}

// BoWVector is a sparse TF-IDF weighted word-id -> weight map.
type BoWVector map[int]float64

// ComputeBoW hard-assigns each of n descriptors (fetched via at) to its
// nearest visual word, builds a term-frequency histogram, applies the
// vocabulary's trained IDF weights, and L2-normalizes the result.
func (v *Vocabulary) ComputeBoW(at func(i int) []float64, n int) BoWVector {
	counts := map[int]int{}
	for i := 0; i < n; i++ {
		k := v.nearestWord(at(i))
		counts[k]++
	}
	bow := make(BoWVector, len(counts))
	var norm float64
	for k, c := range counts {
		tf := float64(c) / float64(n)
		idf := 1.0
		if k < len(v.IDF) {
			idf = v.IDF[k]
		}
		w := tf * idf
		bow[k] = w
		norm += w * w
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for k := range bow {
			bow[k] /= norm
		}
	}
	return bow
}

// cosine computes cosine similarity between two sparse BoW vectors
// (both already L2-normalized, so this is just the dot product).
func cosine(a, b BoWVector) float64 {
	small, large := a, b
	if len(a) > len(b) {
		small, large = b, a
	}
	var dot float64
	for k, v := range small {
		dot += v * large[k]
	}
	return dot
}

// ScoredImage is one Query result.
type ScoredImage struct {
	ID    string
	Score float64
}

// Database is the in-memory BoW index a retrieval run builds up one
// image at a time and queries against.
type Database struct {
	vocab   *Vocabulary
	entries map[string]BoWVector
	order   []string
}

// NewDatabase creates an empty database bound to vocab.
func NewDatabase(v *Vocabulary) *Database {
	return &Database{vocab: v, entries: map[string]BoWVector{}}
}

// AddImage registers an image's BoW vector in the database.
func (db *Database) AddImage(id string, bow BoWVector) {
	if _, exists := db.entries[id]; !exists {
		db.order = append(db.order, id)
	}
	db.entries[id] = bow
}

// ClearDatabase drops every registered image.
func (db *Database) ClearDatabase() {
	db.entries = map[string]BoWVector{}
	db.order = nil
}

// DatabaseSize reports how many images are currently registered.
func (db *Database) DatabaseSize() int { return len(db.entries) }

// Query returns up to topK images best matching bow, excluding excludeID,
// sorted by descending cosine similarity.
func (db *Database) Query(bow BoWVector, topK int, excludeID string) []ScoredImage {
	var out []ScoredImage
	for _, id := range db.order {
		if id == excludeID {
			continue
		}
		out = append(out, ScoredImage{ID: id, Score: cosine(bow, db.entries[id])})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}
