package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/elastic-stacker/stacker/faults"
	"github.com/elastic-stacker/stacker/substitute"
)

const FileEnvVar = "STACKER_CONFIG_FILE"

// filePrecedence is checked in order when no explicit path is given.
var filePrecedence = []string{
	"./stacker.yaml",
	"./stacker.yml",
	"./.stacker.yaml",
	"./.stacker.yml",
	"~/.stacker.yaml",
	"~/.stacker.yml",
	"~/.config/stacker.yaml",
	"~/.config/stacker.yml",
}

func defaultProfile() Profile {
	return Profile{
		Elasticsearch: Client{BaseURL: "https://localhost:9200"},
		Kibana:        Client{BaseURL: "https://localhost:5601"},
		Options:       Options{DataDirectory: "./stacker_data"},
		Log:           Log{Level: "warn"},
	}
}

// Find locates the configuration file from the environment variable or
// the documented search order.
func Find() (string, error) {
	if envPath := os.Getenv(FileEnvVar); envPath != "" {
		expanded := expandHome(envPath)
		info, err := os.Stat(expanded)
		if err != nil {
			return "", faults.NewTypedError(faults.NotFoundError,
				fmt.Sprintf("config file %s from %s does not exist", expanded, FileEnvVar), err)
		}
		if info.IsDir() {
			return "", faults.NewTypedError(faults.ValidationError,
				fmt.Sprintf("config path %s from %s is a directory", expanded, FileEnvVar), nil)
		}
		return expanded, nil
	}

	for _, candidate := range filePrecedence {
		expanded := expandHome(candidate)
		if info, err := os.Stat(expanded); err == nil && !info.IsDir() {
			return expanded, nil
		}
	}
	return "", faults.NewTypedError(faults.NotFoundError,
		"no config file found in "+strings.Join(filePrecedence, ", "), nil)
}

// Load finds (when path is empty), reads and decodes the config file.
func Load(path string) (*File, string, error) {
	if path == "" {
		found, err := Find()
		if err != nil {
			return nil, "", err
		}
		path = found
	} else {
		path = expandHome(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", faults.NewTypedError(faults.NotFoundError,
				fmt.Sprintf("config file %s does not exist", path), err)
		}
		return nil, "", faults.NewTypedError(faults.InternalError, "failed to read config file", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, "", faults.NewTypedError(faults.ValidationError,
			fmt.Sprintf("config file %s is not valid YAML", path), err)
	}
	return &file, path, nil
}

// MakeProfile resolves the effective profile by layering the hardcoded
// defaults, the user default section, the selected profile and the CLI
// overrides, in that order.
func MakeProfile(file *File, profileName string, overrides Profile) (Profile, error) {
	layers := []Profile{defaultProfile(), file.Default}

	if profileName != "" {
		selected, ok := file.Profiles[profileName]
		if !ok {
			return Profile{}, faults.NewTypedError(faults.ValidationError,
				fmt.Sprintf("profile %q not found in config", profileName), nil)
		}
		layers = append(layers, selected)
	}
	layers = append(layers, overrides)

	resolved := Profile{
		Elasticsearch: resolveClient(layers, func(p Profile) Client { return p.Elasticsearch }),
		Kibana:        resolveClient(layers, func(p Profile) Client { return p.Kibana }),
		Substitutions: map[string]substitute.Pattern{},
		Options:       Options{WatcherUsers: map[string]string{}},
	}

	for _, layer := range layers {
		if layer.Options.DataDirectory != "" {
			resolved.Options.DataDirectory = layer.Options.DataDirectory
		}
		for user, password := range layer.Options.WatcherUsers {
			resolved.Options.WatcherUsers[user] = password
		}
		for name, pattern := range layer.Substitutions {
			resolved.Substitutions[name] = pattern
		}
		if layer.Log.Level != "" {
			resolved.Log.Level = layer.Log.Level
		}
		if layer.Git.AutoCommit {
			resolved.Git.AutoCommit = true
		}
		if layer.Git.CommitMessage != "" {
			resolved.Git.CommitMessage = layer.Git.CommitMessage
		}
		if layer.Snapshot.Bucket != "" {
			resolved.Snapshot = layer.Snapshot
		}
	}

	return resolved, nil
}

// resolveClient folds the generic client section and the family-specific
// section of every layer, specific settings winning within a layer.
func resolveClient(layers []Profile, pick func(Profile) Client) Client {
	var resolved Client
	for _, layer := range layers {
		resolved = mergeClient(resolved, layer.Client)
		resolved = mergeClient(resolved, pick(layer))
	}
	return resolved
}

func mergeClient(base Client, overlay Client) Client {
	if overlay.BaseURL != "" {
		base.BaseURL = overlay.BaseURL
	}
	if overlay.Username != "" {
		base.Username = overlay.Username
	}
	if overlay.Password != "" {
		base.Password = overlay.Password
	}
	if overlay.Timeout != 0 {
		base.Timeout = overlay.Timeout
	}
	if overlay.Verify != nil {
		base.Verify = overlay.Verify
	}
	if overlay.CA != "" {
		base.CA = overlay.CA
	}
	if len(overlay.Headers) > 0 {
		if base.Headers == nil {
			base.Headers = map[string]string{}
		}
		for key, value := range overlay.Headers {
			base.Headers[key] = value
		}
	}
	return base
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
