// Package extractor pulls still frames out of a local screen recording
// with ffmpeg, for registration in the content zone alongside frames
// arriving from the file store.
package extractor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// ExtractFrames extracts frames from a recording at the given interval
// (seconds) into outputDir/<recording name>/frame_NNNNNN.jpg and
// returns the frame file names. Already-extracted recordings are left
// alone and their existing frames returned.
func ExtractFrames(videoPath, outputDir string, interval int) ([]string, error) {
	if _, err := os.Stat(videoPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("recording does not exist at path: '%s'", videoPath)
	}

	folderName := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	frameDirPath := filepath.Join(outputDir, folderName)

	// Skip extraction when frames already exist
	if frames, err := listFrames(frameDirPath); err == nil && len(frames) > 0 {
		return frames, nil
	}

	if err := os.MkdirAll(frameDirPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create frame directory '%s': %v", frameDirPath, err)
	}

	ffmpegCommand := exec.Command(
		"ffmpeg",
		"-i", videoPath,
		"-vf", fmt.Sprintf("fps=1/%d", interval),
		fmt.Sprintf("%s/frame_%%06d.jpg", frameDirPath),
	)

	// Capture output for better error reporting
	output, err := ffmpegCommand.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %v\nOutput: %s", err, string(output))
	}

	return listFrames(frameDirPath)
}

func listFrames(frameDirPath string) ([]string, error) {
	files, err := os.ReadDir(frameDirPath)
	if err != nil {
		return nil, err
	}

	var frames []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(strings.ToLower(file.Name()), ".jpg") {
			frames = append(frames, file.Name())
		}
	}
	sort.Strings(frames)
	return frames, nil
}
