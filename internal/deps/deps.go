package deps

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Requirement names an external binary the relay shells out to.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is the outcome of looking up one Requirement. Path is the resolved
// absolute binary when Available.
type Status struct {
	Name        string
	Command     string
	Path        string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// MediaRequirements lists the media tools used by the pipeline and the
// summarize action. Both are optional: without ffprobe videos are sent
// without dimensions, and without ffmpeg thumbnails, audio conversion, and
// image downscaling fall through to plain file uploads.
func MediaRequirements(ffmpegBinary, ffprobeBinary string) []Requirement {
	return []Requirement{
		{
			Name:        "FFmpeg",
			Command:     ffmpegBinary,
			Description: "Thumbnails, voice/music conversion, summary image downscaling",
			Optional:    true,
		},
		{
			Name:        "FFprobe",
			Command:     ffprobeBinary,
			Description: "Video dimensions and duration",
			Optional:    true,
		},
	}
}

// CheckBinaries looks up every requirement.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		results = append(results, check(req))
	}
	return results
}

func check(req Requirement) Status {
	status := Status{
		Name:        req.Name,
		Command:     strings.TrimSpace(req.Command),
		Description: strings.TrimSpace(req.Description),
		Optional:    req.Optional,
	}
	if status.Command == "" {
		status.Detail = "command not configured"
		return status
	}
	path, err := lookup(status.Command)
	if err != nil {
		status.Detail = err.Error()
		return status
	}
	status.Available = true
	status.Path = path
	return status
}

// Resolve returns the absolute path of command as found on PATH, or the
// trimmed command unchanged when it cannot be resolved.
func Resolve(command string) string {
	cmd := strings.TrimSpace(command)
	if cmd == "" {
		return ""
	}
	path, err := lookup(cmd)
	if err != nil {
		return cmd
	}
	return path
}

// Missing returns the required dependencies that are unavailable.
func Missing(statuses []Status) []Status {
	var out []Status
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			out = append(out, s)
		}
	}
	return out
}

func lookup(cmd string) (string, error) {
	resolved, err := exec.LookPath(cmd)
	if err != nil {
		return "", fmt.Errorf("binary %q not found", cmd)
	}
	if abs, err := filepath.Abs(resolved); err == nil {
		return abs, nil
	}
	return resolved, nil
}
