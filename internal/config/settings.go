package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"sandboxfs/internal/fs"
)

// Flag names, also used as viper keys.
const (
	MappingFlag     = "mapping"
	MappingFileFlag = "mapping_file"
	StateFlag       = "state"
	ReconfigFlag    = "reconfig"
	VerboseFlag     = "verbose"
	AllowOtherFlag  = "allow_other"
	TTLFlag         = "ttl"
)

// EnvPrefix prefixes the environment variables that mirror the flags, e.g.
// SANDBOXFS_STATE.
const EnvPrefix = "sandboxfs"

// Settings is the fully resolved configuration of a sandboxfs instance.
type Settings struct {
	MountPoint string
	Mappings   []fs.Mapping
	StatePath  string
	Reconfig   bool
	Verbose    bool
	AllowOther bool
	TTL        time.Duration
}

// RegisterFlags adds the sandboxfs flags to flags.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.StringArray(MappingFlag, nil, "Mapping of the form TYPE:VIRTUAL:HOST with TYPE ro or rw (repeatable)")
	flags.String(MappingFileFlag, "", "YAML file listing additional mappings")
	flags.String(StateFlag, "", "File recording applied mappings, replayed on the next mount")
	flags.Bool(ReconfigFlag, false, "Read live reconfiguration requests from stdin")
	flags.BoolP(VerboseFlag, "v", false, "Enable verbose logging")
	flags.Bool(AllowOtherFlag, false, "Allow other users to access the file system")
	flags.Duration(TTLFlag, fs.DefaultAttrTTL, "How long the kernel may cache attributes and entries")
}

// NewViper returns a viper instance bound to flags and to the SANDBOXFS_*
// environment variables.
func NewViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("could not bind flags: %w", err)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v, nil
}

// Load resolves the settings for mounting at mountPoint. Mappings given on
// the command line come first, followed by those of the mapping file.
func Load(v *viper.Viper, mountPoint string) (*Settings, error) {
	if mountPoint == "" {
		return nil, fmt.Errorf("mount point is required")
	}

	mappings, err := ParseMappings(v.GetStringSlice(MappingFlag))
	if err != nil {
		return nil, err
	}
	if path := v.GetString(MappingFileFlag); path != "" {
		fromFile, err := LoadMappingFile(path)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, fromFile...)
	}
	if err := checkDuplicates(mappings); err != nil {
		return nil, err
	}

	ttl := v.GetDuration(TTLFlag)
	if ttl < 0 {
		return nil, fmt.Errorf("%s must not be negative, got %v", TTLFlag, ttl)
	}

	s := &Settings{
		MountPoint: mountPoint,
		Mappings:   mappings,
		StatePath:  v.GetString(StateFlag),
		Reconfig:   v.GetBool(ReconfigFlag),
		Verbose:    v.GetBool(VerboseFlag),
		AllowOther: v.GetBool(AllowOtherFlag),
		TTL:        ttl,
	}
	logger.Debug("Resolved settings: mount=%s mappings=%d state=%q reconfig=%v ttl=%v",
		s.MountPoint, len(s.Mappings), s.StatePath, s.Reconfig, s.TTL)
	return s, nil
}
