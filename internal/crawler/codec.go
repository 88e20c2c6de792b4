package crawler

import (
	"encoding/json"
	"fmt"
	"io"
)

// UnmarshalJSON decodes a result and rejects payloads whose fields do not
// match their discriminator.
func (r *Result) UnmarshalJSON(data []byte) error {
	type wire Result
	var decoded wire
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	out := Result(decoded)
	if out.Page != nil && out.Page.Type == PageTypeLiveStory && out.Page.Posts == nil {
		out.Page.Posts = []Post{}
	}
	if err := out.Validate(); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	*r = out
	return nil
}

// EncodeResults writes the batch as one JSON object keyed by original URL.
// Non-ASCII and markup characters are written verbatim.
func EncodeResults(w io.Writer, results map[string]Result) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if results == nil {
		results = map[string]Result{}
	}
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	return nil
}

// DecodeResults reads a batch written by EncodeResults.
func DecodeResults(r io.Reader) (map[string]Result, error) {
	var results map[string]Result
	if err := json.NewDecoder(r).Decode(&results); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	if results == nil {
		results = map[string]Result{}
	}
	return results, nil
}
