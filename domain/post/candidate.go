package post

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidCandidate indicates a queue payload that can never be indexed.
var ErrInvalidCandidate = errors.New("invalid candidate payload")

type candidateJSON struct {
	Title       *string `json:"title"`
	ImageURL    *string `json:"image_url"`
	PostURL     *string `json:"post_url"`
	Score       *int    `json:"score"`
	NumComments *int    `json:"num_comments"`
}

// DecodeCandidate parses a queue message body. Missing fields take their
// defaults. A body that is not a JSON object, has mistyped fields, or
// carries negative counts is reported as ErrInvalidCandidate.
func DecodeCandidate(body []byte) (Candidate, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Candidate{}, fmt.Errorf("%w: body is not a JSON object", ErrInvalidCandidate)
	}

	var raw candidateJSON
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return Candidate{}, fmt.Errorf("%w: %v", ErrInvalidCandidate, err)
	}

	c := Candidate{title: DefaultTitle}
	if raw.Title != nil && *raw.Title != "" {
		c.title = *raw.Title
	}
	if raw.ImageURL != nil {
		c.imageURL = *raw.ImageURL
	}
	if raw.PostURL != nil {
		c.postURL = *raw.PostURL
	}
	if raw.Score != nil {
		if *raw.Score < 0 {
			return Candidate{}, fmt.Errorf("%w: negative score %d", ErrInvalidCandidate, *raw.Score)
		}
		c.score = *raw.Score
	}
	if raw.NumComments != nil {
		if *raw.NumComments < 0 {
			return Candidate{}, fmt.Errorf("%w: negative num_comments %d", ErrInvalidCandidate, *raw.NumComments)
		}
		c.numComments = *raw.NumComments
	}
	return c, nil
}

// Encode serializes the candidate as a queue message body.
func (c Candidate) Encode() ([]byte, error) {
	return json.Marshal(struct {
		Title       string `json:"title"`
		ImageURL    string `json:"image_url"`
		PostURL     string `json:"post_url"`
		Score       int    `json:"score"`
		NumComments int    `json:"num_comments"`
	}{c.title, c.imageURL, c.postURL, c.score, c.numComments})
}
