package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	"freightflow/internal/types"
)

// SaveEmbedding upserts the embedding vector of a chronicle. Vectors are
// stored as little-endian float32 blobs.
func (s *Store) SaveEmbedding(ctx context.Context, chronicleID string, vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("store: save embedding %s: empty vector", chronicleID)
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO chronicle_embeddings (chronicle_id, vector)
		VALUES (?, ?)
		ON CONFLICT(chronicle_id) DO UPDATE SET vector = excluded.vector`,
		chronicleID, encodeVector(vector))
	if err != nil {
		return fmt.Errorf("store: save embedding %s: %w", chronicleID, err)
	}
	return nil
}

// SimilarChronicles returns the chronicles whose embeddings are closest to
// the query vector by cosine similarity, best first. The scan is brute
// force; chronicle volume stays small enough that an index is not worth its
// complexity.
func (s *Store) SimilarChronicles(ctx context.Context, vector []float32, limit int) ([]types.SimilarChronicle, error) {
	if len(vector) == 0 || limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT chronicle_id, vector FROM chronicle_embeddings`)
	if err != nil {
		return nil, fmt.Errorf("store: similar chronicles: %w", err)
	}
	defer rows.Close()

	type hit struct {
		id  string
		sim float64
	}
	var hits []hit
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("store: similar chronicles: %w", err)
		}
		v := decodeVector(blob)
		if len(v) != len(vector) {
			continue
		}
		hits = append(hits, hit{id: id, sim: cosine(vector, v)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: similar chronicles: %w", err)
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].sim > hits[j].sim })
	if len(hits) > limit {
		hits = hits[:limit]
	}

	out := make([]types.SimilarChronicle, 0, len(hits))
	for _, h := range hits {
		c, err := s.chronicleByID(ctx, h.id)
		if err != nil {
			return nil, err
		}
		if c == nil {
			continue
		}
		out = append(out, types.SimilarChronicle{Chronicle: *c, Similarity: h.sim})
	}
	return out, nil
}

func (s *Store) chronicleByID(ctx context.Context, id string) (*types.Chronicle, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+chronicleCols+` FROM chronicle WHERE id = ?`, id)
	c, err := scanChronicle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: chronicle %s: %w", id, err)
	}
	return c, nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
