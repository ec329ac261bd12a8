// Package dto holds the request and response bodies of the v1 API.
package dto

import "github.com/helixml/memeindex/domain/post"

// MemeResponse is the public shape of an indexed post. The embedding is
// never exposed.
type MemeResponse struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	ImageURL    string  `json:"image_url"`
	PostURL     string  `json:"post_url"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	HypeScore   float64 `json:"hype_score"`
}

// NewMemeResponse converts a post.
func NewMemeResponse(p post.Post) MemeResponse {
	return MemeResponse{
		ID:          p.ID(),
		Title:       p.Title(),
		ImageURL:    p.ImageURL(),
		PostURL:     p.PostURL(),
		Score:       p.Score(),
		NumComments: p.NumComments(),
		HypeScore:   p.HypeScore(),
	}
}

// NewMemeList converts posts, keeping their order. It never returns nil so
// an empty result encodes as [].
func NewMemeList(posts []post.Post) []MemeResponse {
	out := make([]MemeResponse, 0, len(posts))
	for _, p := range posts {
		out = append(out, NewMemeResponse(p))
	}
	return out
}

// NewRankedList converts ranked posts, keeping their order.
func NewRankedList(ranked []post.Ranked) []MemeResponse {
	out := make([]MemeResponse, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, NewMemeResponse(r.Post()))
	}
	return out
}

// SearchRequest is the body of a search.
type SearchRequest struct {
	Query string `json:"query"`
}
