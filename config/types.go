package config

import "github.com/elastic-stacker/stacker/substitute"

// File is the full configuration file: a "default" profile plus named
// profiles selected at runtime. Settings resolve in precedence order
// hardcoded defaults < default section < selected profile < CLI
// overrides, with generic client settings overridden by the
// elasticsearch/kibana specific sections at every layer.
type File struct {
	Default  Profile            `yaml:"default"`
	Profiles map[string]Profile `yaml:"profiles"`
}

type Profile struct {
	Client        Client                        `yaml:"client"`
	Elasticsearch Client                        `yaml:"elasticsearch"`
	Kibana        Client                        `yaml:"kibana"`
	Options       Options                       `yaml:"options"`
	Substitutions map[string]substitute.Pattern `yaml:"substitutions"`
	Log           Log                           `yaml:"log"`
	Git           Git                           `yaml:"git"`
	Snapshot      Snapshot                      `yaml:"snapshot"`
}

// Client holds the connection settings for one API family.
type Client struct {
	BaseURL  string            `yaml:"base_url"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	Headers  map[string]string `yaml:"headers"`
	Timeout  float64           `yaml:"timeout"`
	Verify   *bool             `yaml:"verify"`
	CA       string            `yaml:"ca"`
}

func (c Client) VerifyTLS() bool {
	if c.Verify == nil {
		return true
	}
	return *c.Verify
}

type Options struct {
	DataDirectory string            `yaml:"data_directory"`
	WatcherUsers  map[string]string `yaml:"watcher_users"`
}

type Log struct {
	Level string `yaml:"level"`
}

// Git enables committing the data directory after a successful dump pass
// when it is a git worktree.
type Git struct {
	AutoCommit    bool   `yaml:"auto_commit"`
	CommitMessage string `yaml:"commit_message"`
}

// Snapshot enables uploading an archive of the data directory to S3
// after a system dump. The key may contain a $date placeholder.
type Snapshot struct {
	Bucket string `yaml:"bucket"`
	Key    string `yaml:"key"`
	Region string `yaml:"region"`
}

func (s Snapshot) Enabled() bool {
	return s.Bucket != ""
}
