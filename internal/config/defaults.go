package config

import (
	"os"
	"path/filepath"
)

// Default returns the baseline configuration before any file overrides.
func Default() Config {
	return Config{
		Paths: Paths{
			DownloadDir: defaultDataDir("downloads"),
			StagingDir:  defaultDataDir("staging"),
			LogDir:      defaultDataDir("logs"),
			APIBind:     "127.0.0.1:7879",
		},
		OMDb: OMDb{
			BaseURL: "https://www.omdbapi.com",
		},
		TMDB: TMDB{
			BaseURL: "https://api.themoviedb.org/3",
		},
		Download: Download{
			ConnectionSequence: []int{8, 6, 4},
			MinFreeDiskGiB:     5,
			Aria2Binary:        "aria2c",
		},
		Workflow: Workflow{
			Workers:                2,
			QueuePollInterval:      5,
			ErrorRetryInterval:     10,
			HeartbeatInterval:      15,
			HeartbeatTimeout:       180,
			CompletedRetentionDays: 30,
		},
		Logging: Logging{
			Format: "console",
			Level:  "info",
		},
		Targets: []Target{
			{
				Name: "local",
				Kind: "local",
				Path: defaultDataDir("library"),
				CategoryFolders: map[string]string{
					"movies":             "Movies",
					"malayalam_movies":   "Malayalam Movies",
					"bollywood_movies":   "Bollywood Movies",
					"tv_shows":           "TV Shows",
					"malayalam_tv_shows": "Malayalam TV Shows",
					"music":              "Music",
				},
			},
		},
		DefaultTarget: "local",
	}
}

func defaultDataDir(leaf string) string {
	if base, ok := os.LookupEnv("XDG_DATA_HOME"); ok && base != "" {
		return filepath.Join(base, "shuttle", leaf)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("shuttle", leaf)
	}
	return filepath.Join(home, ".local", "share", "shuttle", leaf)
}
