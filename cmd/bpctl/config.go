// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
)

// tomlConfig describes bpctl's optional TOML configuration file.
type tomlConfig struct {
	Logging  logConf
	Defaults defaultsConf
}

// logConf describes the Logging configuration block.
type logConf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
	Format       string
}

// defaultsConf describes the Defaults configuration block: Lifetime is the
// lifetime of every bundle "create" makes, Key the key "sign" and "verify"
// use when their key argument is empty.
type defaultsConf struct {
	Lifetime string
	Key      string
}

// cfg is the process-wide configuration, populated by loadConfig. Its
// zero value (no -config flag given) applies no defaults.
var cfg tomlConfig

// applyLogging configures logrus according to conf.Logging.
func (conf tomlConfig) applyLogging() {
	if conf.Logging.Level != "" {
		if lvl, err := log.ParseLevel(conf.Logging.Level); err != nil {
			log.WithFields(log.Fields{
				"level":    conf.Logging.Level,
				"error":    err,
				"provided": "panic,fatal,error,warn,info,debug,trace",
			}).Warn("Failed to set log level. Please select one of the provided ones")
		} else {
			log.SetLevel(lvl)
		}
	}

	log.SetReportCaller(conf.Logging.ReportCaller)

	switch conf.Logging.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})

	case "json":
		log.SetFormatter(&log.JSONFormatter{})

	default:
		log.Warn("Unknown logging format")
	}
}

// loadConfig parses filename as a bpctl TOML configuration and applies
// its Logging block immediately. An empty filename is a no-op.
func loadConfig(filename string) (conf tomlConfig, err error) {
	if filename == "" {
		return tomlConfig{}, nil
	}

	if _, err = toml.DecodeFile(filename, &conf); err != nil {
		return tomlConfig{}, err
	}

	conf.applyLogging()
	return conf, nil
}
