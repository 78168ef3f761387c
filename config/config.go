package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/byte4ever/secure_backup/fsys/sftpfs"
	"github.com/byte4ever/secure_backup/integrity/digest"
	"github.com/byte4ever/secure_backup/integrity/sidecar"
	"github.com/byte4ever/secure_backup/mirror"
	"github.com/byte4ever/secure_backup/monitor"
	"github.com/byte4ever/secure_backup/notice"
)

const (
	// ModeRecord digests a file and overwrites its
	// record.
	ModeRecord = "record"

	// ModeCheck digests a file and compares it with its
	// record without writing.
	ModeCheck = "check"

	// DefaultSource is the directory mirrored when none
	// is configured.
	DefaultSource = "best_folder_ever_made"

	// DefaultDest is the mirror destination used when
	// none is configured.
	DefaultDest = "super_secure_folder"
)

// ErrInvalid reports a configuration that failed
// validation.
var ErrInvalid = errors.New("invalid configuration")

// Config is the whole configuration file.
type Config struct {
	Integrity Integrity `yaml:"integrity"`
	Backup    Backup    `yaml:"backup"`
	Monitor   Monitor   `yaml:"monitor"`
	Log       Log       `yaml:"log"`
}

// Integrity configures verify_integrity.
type Integrity struct {
	File      string `yaml:"file"`
	Sidecar   string `yaml:"sidecar"`
	Mode      string `yaml:"mode"`
	Format    string `yaml:"format"`
	ChunkSize int    `yaml:"chunk_size"`
	Message   string `yaml:"message"`
}

// Backup configures backup_dir.
type Backup struct {
	Source      string `yaml:"source"`
	Dest        string `yaml:"dest"`
	OnError     string `yaml:"on_error"`
	Directories string `yaml:"directories"`
	Verify      bool   `yaml:"verify"`
	Lock        bool   `yaml:"lock"`
	BreakLock   bool   `yaml:"break_lock"`
	ChunkSize   int    `yaml:"chunk_size"`
	Message     string `yaml:"message"`
	Remote      Remote `yaml:"remote"`
}

// Remote selects an SFTP server receiving the backup
// or the monitor baseline. It is enabled when Host is
// set.
type Remote struct {
	Host       string `yaml:"host"`
	User       string `yaml:"user"`
	KeyFile    string `yaml:"key_file"`
	KnownHosts string `yaml:"known_hosts"`
	Timeout    string `yaml:"timeout"`
}

// Monitor configures integrity_monitor.
type Monitor struct {
	Files     []string `yaml:"files"`
	BackupDir string   `yaml:"backup_dir"`
	Sidecar   string   `yaml:"sidecar"`
	Format    string   `yaml:"format"`
	Interval  string   `yaml:"interval"`
	Restore   bool     `yaml:"restore"`
	OnChange  []string `yaml:"on_change"`
	ChunkSize int      `yaml:"chunk_size"`
	Remote    Remote   `yaml:"remote"`
	RemoteDir string   `yaml:"remote_dir"`
}

// Log configures the process logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// File, when set, receives a copy of the log,
	// rotated by size.
	File string `yaml:"file"`
}

// Default returns the configuration used when no file
// is given.
func Default() Config {
	return Config{
		Integrity: Integrity{
			Sidecar:   sidecar.DefaultPath,
			Mode:      ModeRecord,
			Format:    sidecar.FormatRaw.String(),
			ChunkSize: digest.DefaultChunkSize,
			Message:   notice.DigestMessage,
		},
		Backup: Backup{
			Source:      DefaultSource,
			Dest:        DefaultDest,
			OnError:     "continue",
			Directories: "skip",
			Lock:        true,
			ChunkSize:   digest.DefaultChunkSize,
			Message:     notice.BackupMessage,
		},
		Monitor: Monitor{
			Sidecar:   monitor.DefaultSidecar,
			Format:    sidecar.FormatRaw.String(),
			Interval:  monitor.DefaultInterval.String(),
			ChunkSize: digest.DefaultChunkSize,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the YAML file at path over the defaults.
// An empty path returns the defaults.
func Load(path string) (Config, error) {
	const errCtx = "loading configuration"

	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is operator supplied
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	if err := Parse(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%s: %s: %w", errCtx, path, err)
	}

	return cfg, nil
}

// Parse decodes data into cfg, keeping the values of
// keys data does not mention.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.UnmarshalWithOptions(
		data, cfg, yaml.DisallowUnknownField(),
	); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	return nil
}

// Validate checks every enumerated and numeric value.
// Paths are not checked here; each operation reports
// missing paths itself.
func (c Config) Validate() error {
	var errs []error

	check := func(section string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", section, err))
		}
	}

	_, err := c.Integrity.Options()
	check("integrity", err)

	if c.Integrity.Mode != ModeRecord && c.Integrity.Mode != ModeCheck {
		check("integrity", fmt.Errorf("unknown mode %q", c.Integrity.Mode))
	}

	_, err = c.Backup.MirrorConfig()
	check("backup", err)

	if c.Backup.Remote.Enabled() {
		_, err = c.Backup.Remote.SFTP()
		check("backup.remote", err)
	}

	_, err = c.Monitor.interval()
	check("monitor", err)

	_, err = sidecar.ParseFormat(c.Monitor.Format)
	check("monitor", err)

	check("monitor", positive("chunk_size", c.Monitor.ChunkSize))

	if c.Monitor.Remote.Enabled() {
		_, err = c.Monitor.Remote.SFTP()
		check("monitor.remote", err)

		if c.Monitor.RemoteDir == "" {
			check("monitor", errors.New("remote_dir must be set with a remote"))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}

	return nil
}

// Options converts the section into record options for
// c.File.
func (c Integrity) Options() (sidecar.Options, error) {
	format, err := sidecar.ParseFormat(c.Format)
	if err != nil {
		return sidecar.Options{}, err
	}

	if err := positive("chunk_size", c.ChunkSize); err != nil {
		return sidecar.Options{}, err
	}

	return sidecar.Options{
		File:      c.File,
		Sidecar:   c.Sidecar,
		ChunkSize: c.ChunkSize,
		Format:    format,
	}, nil
}

// MirrorConfig converts the section into mirror
// settings on the local filesystem. The caller swaps
// in a remote destination when Remote is enabled.
func (c Backup) MirrorConfig() (mirror.Config, error) {
	onErr, err := mirror.ParseOnError(c.OnError)
	if err != nil {
		return mirror.Config{}, err
	}

	dirs, err := mirror.ParseDirectories(c.Directories)
	if err != nil {
		return mirror.Config{}, err
	}

	if err := positive("chunk_size", c.ChunkSize); err != nil {
		return mirror.Config{}, err
	}

	return mirror.Config{
		SourceDir:   c.Source,
		DestDir:     c.Dest,
		OnError:     onErr,
		Directories: dirs,
		ChunkSize:   c.ChunkSize,
		Verify:      c.Verify,
		Lock:        c.Lock,
		BreakLock:   c.BreakLock,
	}, nil
}

// Enabled reports whether a remote destination is set.
func (r Remote) Enabled() bool {
	return r.Host != ""
}

// SFTP converts the section into dial settings.
func (r Remote) SFTP() (sftpfs.Config, error) {
	var timeout time.Duration

	if r.Timeout != "" {
		d, err := time.ParseDuration(r.Timeout)
		if err != nil {
			return sftpfs.Config{}, fmt.Errorf("timeout: %w", err)
		}

		timeout = d
	}

	var errs []error

	if r.User == "" {
		errs = append(errs, errors.New("user must be set"))
	}

	if r.KeyFile == "" {
		errs = append(errs, errors.New("key_file must be set"))
	}

	if r.KnownHosts == "" {
		errs = append(errs, errors.New("known_hosts must be set"))
	}

	if len(errs) > 0 {
		return sftpfs.Config{}, errors.Join(errs...)
	}

	return sftpfs.Config{
		Host:       r.Host,
		User:       r.User,
		KeyFile:    r.KeyFile,
		KnownHosts: r.KnownHosts,
		Timeout:    timeout,
	}, nil
}

// MonitorConfig converts the section into monitor
// settings on the local filesystem. The caller dials
// and sets the remote when Remote is enabled.
func (c Monitor) MonitorConfig() (monitor.Config, error) {
	interval, err := c.interval()
	if err != nil {
		return monitor.Config{}, err
	}

	format, err := sidecar.ParseFormat(c.Format)
	if err != nil {
		return monitor.Config{}, err
	}

	return monitor.Config{
		Files:     c.Files,
		BackupDir: c.BackupDir,
		Sidecar:   c.Sidecar,
		Format:    format,
		ChunkSize: c.ChunkSize,
		Interval:  interval,
		Restore:   c.Restore,
		OnChange:  c.OnChange,
		RemoteDir: c.RemoteDir,
	}, nil
}

func (c Monitor) interval() (time.Duration, error) {
	if c.Interval == "" {
		return monitor.DefaultInterval, nil
	}

	d, err := time.ParseDuration(c.Interval)
	if err != nil {
		return 0, fmt.Errorf("interval: %w", err)
	}

	if d <= 0 {
		return 0, fmt.Errorf("interval must be positive, got %s", d)
	}

	return d, nil
}

func positive(name string, v int) error {
	if v <= 0 {
		return fmt.Errorf("%s must be positive, got %d", name, v)
	}

	return nil
}
