package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/elastic-stacker/stacker/faults"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stacker.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Run("reads_explicit_path", func(t *testing.T) {
		path := writeConfig(t, `
default:
  elasticsearch:
    base_url: https://es.internal:9200
`)
		file, resolved, err := Load(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resolved != path {
			t.Fatalf("resolved path = %q, want %q", resolved, path)
		}
		if file.Default.Elasticsearch.BaseURL != "https://es.internal:9200" {
			t.Fatalf("unexpected base url %q", file.Default.Elasticsearch.BaseURL)
		}
	})

	t.Run("missing_file_is_not_found", func(t *testing.T) {
		_, _, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		if !faults.IsCategory(err, faults.NotFoundError) {
			t.Fatalf("expected not-found error, got %v", err)
		}
	})

	t.Run("invalid_yaml_is_a_validation_error", func(t *testing.T) {
		path := writeConfig(t, "default: [unbalanced")
		_, _, err := Load(path)
		if !faults.IsCategory(err, faults.ValidationError) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("env_var_overrides_search_order", func(t *testing.T) {
		path := writeConfig(t, "default: {}\n")
		t.Setenv(FileEnvVar, path)
		_, resolved, err := Load("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resolved != path {
			t.Fatalf("resolved path = %q, want %q", resolved, path)
		}
	})

	t.Run("env_var_pointing_nowhere_fails", func(t *testing.T) {
		t.Setenv(FileEnvVar, filepath.Join(t.TempDir(), "absent.yaml"))
		_, _, err := Load("")
		if !faults.IsCategory(err, faults.NotFoundError) {
			t.Fatalf("expected not-found error, got %v", err)
		}
	})
}

func TestMakeProfile(t *testing.T) {
	t.Parallel()

	t.Run("hardcoded_defaults_apply", func(t *testing.T) {
		t.Parallel()
		profile, err := MakeProfile(&File{}, "", Profile{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if profile.Elasticsearch.BaseURL != "https://localhost:9200" {
			t.Fatalf("unexpected elasticsearch url %q", profile.Elasticsearch.BaseURL)
		}
		if profile.Kibana.BaseURL != "https://localhost:5601" {
			t.Fatalf("unexpected kibana url %q", profile.Kibana.BaseURL)
		}
		if profile.Options.DataDirectory != "./stacker_data" {
			t.Fatalf("unexpected data directory %q", profile.Options.DataDirectory)
		}
	})

	t.Run("default_section_overrides_hardcoded", func(t *testing.T) {
		t.Parallel()
		file := &File{
			Default: Profile{
				Elasticsearch: Client{BaseURL: "https://es.default:9200"},
				Options:       Options{DataDirectory: "/srv/stacker"},
			},
		}
		profile, err := MakeProfile(file, "", Profile{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if profile.Elasticsearch.BaseURL != "https://es.default:9200" {
			t.Fatalf("unexpected elasticsearch url %q", profile.Elasticsearch.BaseURL)
		}
		if profile.Options.DataDirectory != "/srv/stacker" {
			t.Fatalf("unexpected data directory %q", profile.Options.DataDirectory)
		}
	})

	t.Run("named_profile_overrides_default_section", func(t *testing.T) {
		t.Parallel()
		file := &File{
			Default: Profile{
				Elasticsearch: Client{BaseURL: "https://es.default:9200", Username: "default-user"},
			},
			Profiles: map[string]Profile{
				"production": {
					Elasticsearch: Client{BaseURL: "https://es.prod:9200"},
				},
			},
		}
		profile, err := MakeProfile(file, "production", Profile{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if profile.Elasticsearch.BaseURL != "https://es.prod:9200" {
			t.Fatalf("unexpected elasticsearch url %q", profile.Elasticsearch.BaseURL)
		}
		if profile.Elasticsearch.Username != "default-user" {
			t.Fatalf("expected username from the default section, got %q", profile.Elasticsearch.Username)
		}
	})

	t.Run("cli_overrides_win", func(t *testing.T) {
		t.Parallel()
		file := &File{
			Profiles: map[string]Profile{
				"production": {Elasticsearch: Client{BaseURL: "https://es.prod:9200"}},
			},
		}
		overrides := Profile{Elasticsearch: Client{BaseURL: "https://es.cli:9200"}}
		profile, err := MakeProfile(file, "production", overrides)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if profile.Elasticsearch.BaseURL != "https://es.cli:9200" {
			t.Fatalf("unexpected elasticsearch url %q", profile.Elasticsearch.BaseURL)
		}
	})

	t.Run("client_section_feeds_both_families", func(t *testing.T) {
		t.Parallel()
		file := &File{
			Default: Profile{
				Client:        Client{Username: "shared", Password: "secret", Timeout: 30},
				Elasticsearch: Client{Username: "es-only"},
			},
		}
		profile, err := MakeProfile(file, "", Profile{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if profile.Elasticsearch.Username != "es-only" {
			t.Fatalf("specific section should win within the layer, got %q", profile.Elasticsearch.Username)
		}
		if profile.Elasticsearch.Password != "secret" {
			t.Fatalf("generic client password should carry over, got %q", profile.Elasticsearch.Password)
		}
		if profile.Kibana.Username != "shared" || profile.Kibana.Timeout != 30 {
			t.Fatalf("kibana did not inherit the generic client settings: %+v", profile.Kibana)
		}
	})

	t.Run("unknown_profile_fails", func(t *testing.T) {
		t.Parallel()
		_, err := MakeProfile(&File{}, "nonexistent", Profile{})
		if !faults.IsCategory(err, faults.ValidationError) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("watcher_users_and_substitutions_merge", func(t *testing.T) {
		t.Parallel()
		file := &File{
			Default: Profile{
				Options: Options{WatcherUsers: map[string]string{"alerts": "default-pass"}},
			},
			Profiles: map[string]Profile{
				"production": {
					Options: Options{WatcherUsers: map[string]string{"alerts": "prod-pass", "audit": "audit-pass"}},
				},
			},
		}
		profile, err := MakeProfile(file, "production", Profile{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if profile.Options.WatcherUsers["alerts"] != "prod-pass" {
			t.Fatalf("profile layer should override, got %q", profile.Options.WatcherUsers["alerts"])
		}
		if profile.Options.WatcherUsers["audit"] != "audit-pass" {
			t.Fatal("profile-only user is missing")
		}
	})
}
