package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nulltea/latpir/pir"
	"gopkg.in/yaml.v3"
)

// Config is the server configuration. Values come from the YAML file named by
// -config; flags given on the command line override the file.
type Config struct {
	Listen               string        `yaml:"listen"`
	Database             string        `yaml:"database"`
	Backend              string        `yaml:"backend"`
	PolyDegree           int           `yaml:"poly_degree"`
	PlaintextModulusBits int           `yaml:"plaintext_modulus_bits"`
	Dimensionality       int           `yaml:"dimensionality"`
	Dimensions           []int         `yaml:"dimensions"`
	Workers              int           `yaml:"workers"`
	Verbosity            int           `yaml:"verbosity"`
	Trace                bool          `yaml:"trace"`
	MetricsInterval      time.Duration `yaml:"metrics_interval"`
}

func defaultConfig() Config {
	return Config{
		Listen:               ":50051",
		Backend:              "bgv",
		PolyDegree:           2048,
		PlaintextModulusBits: 12,
		Dimensionality:       2,
		MetricsInterval:      time.Minute,
	}
}

// Parameters publishes the configured geometry for a store of count records of
// size bytes.
func (c Config) Parameters(count, size int) pir.Parameters {
	return pir.Parameters{
		RecordCount:          count,
		RecordSize:           size,
		PolyDegree:           c.PolyDegree,
		PlaintextModulusBits: c.PlaintextModulusBits,
		Dimensionality:       c.Dimensionality,
		Dimensions:           c.Dimensions,
	}
}

// intList is a comma-separated list of ints.
type intList struct{ dst *[]int }

func (l intList) String() string {
	if l.dst == nil {
		return ""
	}
	parts := make([]string, len(*l.dst))
	for i, v := range *l.dst {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func (l intList) Set(s string) error {
	*l.dst = nil
	if s == "" {
		return nil
	}
	for _, part := range strings.Split(s, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return fmt.Errorf("bad dimension %q: %w", part, err)
		}
		*l.dst = append(*l.dst, v)
	}
	return nil
}

func loadConfig(args []string) (Config, error) {
	cfg := defaultConfig()
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	path := fs.String("config", "", "YAML configuration file")
	fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "address to serve JSON-RPC on")
	fs.StringVar(&cfg.Database, "db", cfg.Database, "record store file (PIRDatabase format)")
	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, "HE backend: [bgv|plain]")
	fs.IntVar(&cfg.PolyDegree, "N", cfg.PolyDegree, "polynomial degree")
	fs.IntVar(&cfg.PlaintextModulusBits, "logt", cfg.PlaintextModulusBits, "plaintext modulus bits")
	fs.IntVar(&cfg.Dimensionality, "d", cfg.Dimensionality, "number of database dimensions")
	fs.Var(intList{&cfg.Dimensions}, "dims", "comma-separated dimension sizes (derived when empty)")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "preprocessing and reply workers (0 = GOMAXPROCS)")
	fs.IntVar(&cfg.Verbosity, "v", cfg.Verbosity, "log verbosity")
	fs.BoolVar(&cfg.Trace, "trace", cfg.Trace, "export spans to stdout")
	fs.DurationVar(&cfg.MetricsInterval, "metrics-interval", cfg.MetricsInterval, "metrics reporting interval")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if *path != "" {
		explicit := make(map[string]string)
		fs.Visit(func(f *flag.Flag) { explicit[f.Name] = f.Value.String() })

		data, err := os.ReadFile(*path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", *path, err)
		}
		for name, value := range explicit {
			if err := fs.Set(name, value); err != nil {
				return Config{}, err
			}
		}
	}

	if cfg.Database == "" {
		return Config{}, fmt.Errorf("no record store given, use -db or the database key")
	}
	if cfg.Backend != "bgv" && cfg.Backend != "plain" {
		return Config{}, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	return cfg, nil
}
