package recordings

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/tobiipro/g3go/g3types"
)

// ComponentFile describes one media or data component of a recording as
// listed in its recording.g3 index.
type ComponentFile struct {
	File string `json:"file"`
}

// FileIndex is the parsed recording.g3 JSON index of a recording folder.
type FileIndex struct {
	Name       string         `json:"name"`
	Created    string         `json:"created"`
	Duration   float64        `json:"duration"`
	MetaFolder string         `json:"meta-folder"`
	SceneCamera *ComponentFile `json:"scenecamera"`
	Gaze       *ComponentFile `json:"gaze"`
	Events     *ComponentFile `json:"events"`
	IMU        *ComponentFile `json:"imu"`
}

// fetchFileIndex GETs and parses a recording.g3 index.
func fetchFileIndex(ctx context.Context, client *http.Client, url string) (*FileIndex, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to fetch recording index from %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("recording index fetch from %s returned status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read recording index from %s: %w", url, err)
	}
	var index FileIndex
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, &g3types.InvalidResponseError{Message: "recording index is not valid JSON"}
	}
	return &index, nil
}
