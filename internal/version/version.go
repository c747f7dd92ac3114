package version

import (
	"encoding/json"
	"os"

	"github.com/JustinTDCT/CineHub/internal/logger"
)

// Commit is set at build time with -ldflags "-X .../version.Commit=...".
var Commit = "dev"

type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// Load reads the release version from path, falling back to 0.0.0.
func Load(path string) Info {
	info := Info{Version: "0.0.0", Commit: Commit}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("could not read version file", "path", path, "error", err)
		return info
	}
	if err := json.Unmarshal(data, &info); err != nil {
		logger.Warn("could not parse version file", "path", path, "error", err)
		return Info{Version: "0.0.0", Commit: Commit}
	}
	if info.Commit == "" {
		info.Commit = Commit
	}
	return info
}
