package files

import "strings"

// PageText is one page of extracted PDF text handed to ingestion.
type PageText struct {
	Page int    `json:"page" validate:"required,min=1"`
	Text string `json:"text" validate:"required"`
}

// Chunk is a slice of page text sized for embedding.
type Chunk struct {
	Page    int
	Index   int
	Content string
}

// chunkPages splits extracted page text into overlapping windows. Overlap
// keeps sentences that straddle a boundary retrievable from either side.
func chunkPages(pages []PageText, size, overlap int) []Chunk {
	if size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	step := size - overlap

	var chunks []Chunk
	idx := 0
	for _, page := range pages {
		text := strings.TrimSpace(page.Text)
		if text == "" {
			continue
		}
		runes := []rune(text)
		for start := 0; start < len(runes); start += step {
			end := start + size
			if end > len(runes) {
				end = len(runes)
			}
			content := strings.TrimSpace(string(runes[start:end]))
			if content != "" {
				chunks = append(chunks, Chunk{
					Page:    page.Page,
					Index:   idx,
					Content: content,
				})
				idx++
			}
			if end == len(runes) {
				break
			}
		}
	}
	return chunks
}
