package config

import (
	"os"
	"path/filepath"
)

// DataDirName is the per-site directory holding config, database and logs.
const DataDirName = ".faultline"

// FindSiteRoot looks for the .faultline directory starting from the current
// working directory and moving up the directory tree
func FindSiteRoot() (string, error) {
	currentDir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	dir := currentDir
	for {
		if _, err := os.Stat(filepath.Join(dir, DataDirName)); err == nil {
			return dir, nil
		}

		parentDir := filepath.Dir(dir)
		if parentDir == dir {
			break
		}
		dir = parentDir
	}

	// Nothing found; the working directory becomes the site root
	return currentDir, nil
}

// GetDataDir returns the path to the .faultline directory under the site root
func GetDataDir(siteRoot string) string {
	return filepath.Join(siteRoot, DataDirName)
}

// EnsureDataDirs creates the necessary .faultline subdirectories
func EnsureDataDirs(dataDir string) error {
	subdirs := []string{
		filepath.Join(dataDir, "logs"),
		filepath.Join(dataDir, "store"),
	}

	for _, subdir := range subdirs {
		if err := os.MkdirAll(subdir, 0755); err != nil {
			return err
		}
	}

	return nil
}
