// Package post defines meme posts as discovered by the crawler and as persisted by the indexer.
package post

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Hype score weights.
const (
	ScoreWeight    = 1.0
	CommentsWeight = 5.0
)

// DefaultTitle is used when a payload carries no title.
const DefaultTitle = "No Title"

// HypeScore derives the popularity metric from upvotes and comments.
func HypeScore(score, numComments int) float64 {
	return float64(score)*ScoreWeight + float64(numComments)*CommentsWeight
}

// Candidate is a post discovered by the crawler. It only exists in transit on the queue.
type Candidate struct {
	title       string
	imageURL    string
	postURL     string
	score       int
	numComments int
}

// NewCandidate creates a Candidate. Negative counts are clamped to zero.
func NewCandidate(title, imageURL, postURL string, score, numComments int) Candidate {
	return Candidate{
		title:       title,
		imageURL:    imageURL,
		postURL:     postURL,
		score:       max(score, 0),
		numComments: max(numComments, 0),
	}
}

// Title returns the post title.
func (c Candidate) Title() string { return c.title }

// ImageURL returns the image or content URL.
func (c Candidate) ImageURL() string { return c.imageURL }

// PostURL returns the absolute post URL.
func (c Candidate) PostURL() string { return c.postURL }

// Score returns the upvote score.
func (c Candidate) Score() int { return c.score }

// NumComments returns the comment count.
func (c Candidate) NumComments() int { return c.numComments }

// HypeScore returns the hype score of the candidate.
func (c Candidate) HypeScore() float64 { return HypeScore(c.score, c.numComments) }

// Key returns the idempotency key for the candidate: the SHA-256 of the post
// URL, or of title and image URL when the post URL is empty.
func (c Candidate) Key() string {
	source := c.postURL
	if source == "" {
		source = c.title + "|" + c.imageURL
	}
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

// Post is an indexed, persisted meme post. Posts are immutable once stored.
type Post struct {
	id             int64
	key            string
	title          string
	imageURL       string
	postURL        string
	score          int
	numComments    int
	hypeScore      float64
	embedding      []float64
	embeddingModel string
	createdAt      time.Time
}

// NewPost builds an unsaved Post from a candidate, computing its hype score
// once from the candidate's counts.
func NewPost(c Candidate, embedding []float64, embeddingModel string) Post {
	return Post{
		key:            c.Key(),
		title:          c.title,
		imageURL:       c.imageURL,
		postURL:        c.postURL,
		score:          c.score,
		numComments:    c.numComments,
		hypeScore:      c.HypeScore(),
		embedding:      copyVector(embedding),
		embeddingModel: embeddingModel,
	}
}

// ReconstructPost recreates a Post from persisted data.
func ReconstructPost(
	id int64,
	key, title, imageURL, postURL string,
	score, numComments int,
	hypeScore float64,
	embedding []float64,
	embeddingModel string,
	createdAt time.Time,
) Post {
	return Post{
		id:             id,
		key:            key,
		title:          title,
		imageURL:       imageURL,
		postURL:        postURL,
		score:          score,
		numComments:    numComments,
		hypeScore:      hypeScore,
		embedding:      copyVector(embedding),
		embeddingModel: embeddingModel,
		createdAt:      createdAt,
	}
}

// ID returns the identifier assigned at persistence (0 if unsaved).
func (p Post) ID() int64 { return p.id }

// Key returns the idempotency key.
func (p Post) Key() string { return p.key }

// Title returns the post title.
func (p Post) Title() string { return p.title }

// ImageURL returns the image or content URL.
func (p Post) ImageURL() string { return p.imageURL }

// PostURL returns the absolute post URL.
func (p Post) PostURL() string { return p.postURL }

// Score returns the upvote score at indexing time.
func (p Post) Score() int { return p.score }

// NumComments returns the comment count at indexing time.
func (p Post) NumComments() int { return p.numComments }

// HypeScore returns the hype score computed at indexing time.
func (p Post) HypeScore() float64 { return p.hypeScore }

// Embedding returns a copy of the title embedding.
func (p Post) Embedding() []float64 { return copyVector(p.embedding) }

// Dimension returns the embedding dimension.
func (p Post) Dimension() int { return len(p.embedding) }

// EmbeddingModel returns the embedder version that produced the embedding.
func (p Post) EmbeddingModel() string { return p.embeddingModel }

// CreatedAt returns when the post was persisted.
func (p Post) CreatedAt() time.Time { return p.createdAt }

func copyVector(v []float64) []float64 {
	if v == nil {
		return nil
	}
	cp := make([]float64, len(v))
	copy(cp, v)
	return cp
}

// Ranked pairs a post with its cosine distance to a query vector.
type Ranked struct {
	post     Post
	distance float64
}

// NewRanked creates a Ranked result.
func NewRanked(p Post, distance float64) Ranked {
	return Ranked{post: p, distance: distance}
}

// Post returns the ranked post.
func (r Ranked) Post() Post { return r.post }

// Distance returns the cosine distance to the query.
func (r Ranked) Distance() float64 { return r.distance }
