package refid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedReference is returned when a reference id does not parse
// under the canonical grammar.
var ErrMalformedReference = errors.New("malformed reference id")

const (
	chunkSep       = "_chunk_"
	legacyChunkSep = "_chunk"
)

// Normalize rewrites a legacy slash-delimited reference id into the
// canonical underscore form. Canonical ids pass through unchanged.
func Normalize(ref string) string {
	return strings.ReplaceAll(ref, "/", "_")
}

// FrameRef builds the canonical reference id for a frame:
// "{folder}_{frameID}". Folder names carry no underscore, which is what
// keeps ParseFrameRef unambiguous even though frame ids may contain them
// (e.g. "frame_000042").
func FrameRef(folder, frameID string) (string, error) {
	if folder == "" || frameID == "" {
		return "", fmt.Errorf("%w: empty folder or frame id", ErrMalformedReference)
	}
	if strings.Contains(folder, "/") || strings.Contains(frameID, "/") {
		return "", fmt.Errorf("%w: %q/%q contains a slash", ErrMalformedReference, folder, frameID)
	}
	if strings.Contains(folder, "_") {
		return "", fmt.Errorf("%w: folder %q contains an underscore", ErrMalformedReference, folder)
	}
	return folder + "_" + frameID, nil
}

// ParseFrameRef splits a frame reference id back into (folder, frameID).
// The split is on the first underscore; everything after it belongs to
// the frame id.
func ParseFrameRef(ref string) (folder, frameID string, err error) {
	if strings.Contains(ref, "/") {
		return "", "", fmt.Errorf("%w: %q contains a slash", ErrMalformedReference, ref)
	}
	i := strings.Index(ref, "_")
	if i <= 0 || i == len(ref)-1 {
		return "", "", fmt.Errorf("%w: %q is not a frame reference", ErrMalformedReference, ref)
	}
	return ref[:i], ref[i+1:], nil
}

// ChunkRef builds the canonical reference id for a chunk of a frame:
// "{frameRef}_chunk_{index}". Indices are 0-based. The legacy 1-based
// "_ChunkN" form is read-only and never produced here.
func ChunkRef(frameRef string, index int) (string, error) {
	if frameRef == "" || strings.Contains(frameRef, "/") {
		return "", fmt.Errorf("%w: bad frame reference %q", ErrMalformedReference, frameRef)
	}
	if index < 0 {
		return "", fmt.Errorf("%w: negative chunk index %d", ErrMalformedReference, index)
	}
	return frameRef + chunkSep + strconv.Itoa(index), nil
}

// ParseChunkRef splits a chunk reference id into its parent frame
// reference and 0-based chunk index. Both the canonical "_chunk_{n}"
// form and the legacy 1-based "_Chunk{n}" form are accepted; legacy
// indices are converted to 0-based.
func ParseChunkRef(ref string) (frameRef string, index int, err error) {
	if strings.Contains(ref, "/") {
		return "", 0, fmt.Errorf("%w: %q contains a slash", ErrMalformedReference, ref)
	}
	lower := strings.ToLower(ref)

	if i := strings.LastIndex(lower, chunkSep); i > 0 {
		n, convErr := strconv.Atoi(ref[i+len(chunkSep):])
		if convErr == nil && n >= 0 {
			return ref[:i], n, nil
		}
	}

	// Legacy "_ChunkN": no separator after "Chunk", 1-based index.
	if i := strings.LastIndex(lower, legacyChunkSep); i > 0 {
		n, convErr := strconv.Atoi(ref[i+len(legacyChunkSep):])
		if convErr == nil && n >= 1 {
			return ref[:i], n - 1, nil
		}
	}

	return "", 0, fmt.Errorf("%w: %q is not a chunk reference", ErrMalformedReference, ref)
}

// IsChunkRef reports whether s parses as a chunk reference id.
func IsChunkRef(s string) bool {
	_, _, err := ParseChunkRef(s)
	return err == nil
}

// IsFrameRef reports whether s is a plausible frame reference id: no
// slash, not a chunk reference, and non-empty on both sides of the
// folder separator.
func IsFrameRef(s string) bool {
	if IsChunkRef(s) {
		return false
	}
	_, _, err := ParseFrameRef(s)
	return err == nil
}

// IsValid reports whether s is usable as a reference id at all:
// non-empty and free of the forbidden slash delimiter.
func IsValid(s string) bool {
	return s != "" && !strings.Contains(s, "/")
}
