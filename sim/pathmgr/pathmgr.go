// Package pathmgr locates the external tool installations the pipeline
// depends on. Tool paths live in a path_config.env file resolved in a fixed
// precedence order, so that one simulation config can run unchanged on
// machines with different tool installations.
package pathmgr

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// FileName is the well-known name of the tool path configuration file.
const FileName = "path_config.env"

// Keys recognized in path_config.env. Environment variables of the same name
// override file entries.
const (
	KeyMCXBinary      = "MCX_BINARY_PATH"          // optical Monte-Carlo solver binary
	KeyMatlabBinary   = "MATLAB_BINARY_PATH"       // MATLAB launcher for the acoustic toolbox
	KeyAcousticScript = "ACOUSTIC_SCRIPT_DIRECTORY" // directory with the k-Wave entry scripts
)

// Config holds the resolved external tool locations.
type Config struct {
	MCXBinaryPath           string
	MatlabBinaryPath        string
	AcousticScriptDirectory string

	// Source is the path of the file the entries came from; empty when the
	// configuration was assembled from environment variables alone.
	Source string
}

// ErrNotFound reports that no path_config.env could be located. Probed lists
// every location that was tried, in precedence order.
type ErrNotFound struct {
	Probed []string
}

func (e *ErrNotFound) Error() string {
	return "no " + FileName + " found; probed: " + strings.Join(e.Probed, ", ")
}

// Resolve returns the path of the path_config.env to use. Precedence:
//  1. the explicit caller-supplied path (must exist if non-empty)
//  2. the user's home directory
//  3. the current working directory
//  4. the toolkit's own installation directory (directory of the executable)
//
// The returned probe list records every location that was considered.
func Resolve(explicit string) (string, []string, error) {
	var probed []string

	if explicit != "" {
		probed = append(probed, explicit)
		if fileExists(explicit) {
			return explicit, probed, nil
		}
		// An explicit path that does not exist is a hard error rather than a
		// silent fallback to the search locations.
		return "", probed, errors.Errorf("path config %q does not exist", explicit)
	}

	if home, err := os.UserHomeDir(); err == nil {
		candidate := filepath.Join(home, FileName)
		probed = append(probed, candidate)
		if fileExists(candidate) {
			return candidate, probed, nil
		}
	}

	if cwd, err := os.Getwd(); err == nil {
		candidate := filepath.Join(cwd, FileName)
		probed = append(probed, candidate)
		if fileExists(candidate) {
			return candidate, probed, nil
		}
	}

	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), FileName)
		probed = append(probed, candidate)
		if fileExists(candidate) {
			return candidate, probed, nil
		}
	}

	return "", probed, &ErrNotFound{Probed: probed}
}

// Load resolves and parses the path configuration. Environment variables
// override file entries key by key; if every key is provided by the
// environment, a missing file is not an error.
func Load(explicit string) (*Config, error) {
	entries := map[string]string{}

	source, probed, err := Resolve(explicit)
	if err != nil {
		if _, notFound := err.(*ErrNotFound); !notFound {
			return nil, err
		}
		logrus.Debugf("no %s found (probed %v), relying on environment variables", FileName, probed)
	} else {
		entries, err = godotenv.Read(source)
		if err != nil {
			return nil, errors.Wrapf(err, "parse %q", source)
		}
		logrus.Debugf("loaded tool paths from %s", source)
	}

	cfg := &Config{
		MCXBinaryPath:           lookup(entries, KeyMCXBinary),
		MatlabBinaryPath:        lookup(entries, KeyMatlabBinary),
		AcousticScriptDirectory: lookup(entries, KeyAcousticScript),
		Source:                  source,
	}
	if cfg.MCXBinaryPath == "" && cfg.MatlabBinaryPath == "" && cfg.AcousticScriptDirectory == "" && source == "" {
		return nil, &ErrNotFound{Probed: probed}
	}
	return cfg, nil
}

// lookup prefers the process environment over the file entry.
func lookup(entries map[string]string, key string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return entries[key]
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
