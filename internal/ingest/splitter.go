package ingest

import "strings"

// SplitWords chops text into sliding word windows of `window` words
// with `overlap` words shared between neighbours. Returns nil for
// blank text; the final window may be shorter.
func SplitWords(text string, window, overlap int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if window <= 0 {
		window = 1
	}
	if overlap < 0 || overlap >= window {
		overlap = 0
	}

	step := window - overlap
	var chunks []string
	for start := 0; start < len(words); start += step {
		end := start + window
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}
