package config

import "os"

// CommandLine holds the flags cmd/daxd parses out of os.Args, mirroring
// parsecommandline()'s -C/-S/-I/-P/-v options. A zero value for a field
// means "not given on the command line" and leaves the configured value
// from the file/environment untouched.
type CommandLine struct {
	ConfigFile string
	SocketName string
	ServerIP   string
	ServerPort uint16
	Verbose    bool
}

func (cli CommandLine) apply(cfg Config) Config {
	if cli.SocketName != "" {
		cfg.SocketName = cli.SocketName
	}
	if cli.ServerIP != "" {
		cfg.ServerIP = cli.ServerIP
	}
	if cli.ServerPort != 0 {
		cfg.ServerPort = cli.ServerPort
	}
	if cli.Verbose {
		cfg.LogLevel = "debug"
	}
	return cfg
}

// Init builds the running configuration: defaults, then the config file (if
// it exists), then DAXD_* environment overrides, then command-line flags —
// each layer taking precedence over the last, consistent with how most
// daemons layer config sources even though the original C server only ever
// let the command line pre-empt the config file, never override it after
// the fact. The merged result is validated and stored in Keys.
func Init(cli CommandLine) (Config, error) {
	cfg := Default()

	path := cli.ConfigFile
	if path == "" {
		path = "/etc/opendax/tagserver.conf"
	}
	loaded, err := Load(path, cfg)
	switch {
	case err == nil:
		cfg = loaded
	case os.IsNotExist(err):
		// no config file is not fatal; defaults and overrides still apply
	default:
		return cfg, err
	}

	cfg = ApplyEnv(cfg)
	cfg = cli.apply(cfg)

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	Keys = cfg
	return cfg, nil
}
