// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads assembler settings from a YAML file and the
// environment via Viper.
package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"

	"github.com/kortschak/contig/positional"
)

// Assembly holds the positional assembly settings.
type Assembly struct {
	K                                 int     `mapstructure:"k"`
	ReferenceIndex                    int     `mapstructure:"reference-index"`
	FragmentSize                      int     `mapstructure:"fragment-size"`
	MaxReadLength                     int     `mapstructure:"max-read-length"`
	MaxEvidenceSupportIntervalWidth   int     `mapstructure:"max-evidence-support-interval-width"`
	AnchorLength                      int     `mapstructure:"anchor-length"`
	MaxExpectedBreakendLengthMultiple float64 `mapstructure:"max-expected-breakend-length-multiple"`
	RetainWidthMultiple               float64 `mapstructure:"retain-width-multiple"`
	FlushWidthMultiple                float64 `mapstructure:"flush-width-multiple"`
	RemoveMisassembledPartialContigs  bool    `mapstructure:"remove-misassembled-partial-contigs"`
	QualScale                         float64 `mapstructure:"qual-scale"`
	SelfCheck                         bool    `mapstructure:"self-check"`
}

// Config is the root settings struct.
type Config struct {
	Assembly Assembly `mapstructure:"assembly"`
}

// Load returns settings read from the file at path, overridden by
// CONTIG_* environment variables. An empty path loads defaults and
// environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("assembly.max-expected-breakend-length-multiple", 3.0)
	v.SetDefault("assembly.retain-width-multiple", 8.0)
	v.SetDefault("assembly.flush-width-multiple", 4.0)
	v.SetDefault("assembly.anchor-length", 100)
	v.SetDefault("assembly.remove-misassembled-partial-contigs", true)
	v.SetDefault("assembly.qual-scale", 1.0)

	v.SetEnvPrefix("contig")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		err := v.ReadInConfig()
		if err != nil {
			return nil, err
		}
	}

	var c Config
	err := v.Unmarshal(&c)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Positional maps the loaded settings onto the assembler configuration.
// Validation happens when the assembler is constructed.
func (c *Config) Positional(logger *log.Logger) positional.Config {
	a := c.Assembly
	return positional.Config{
		K:                                 a.K,
		ReferenceIndex:                    a.ReferenceIndex,
		FragmentSize:                      a.FragmentSize,
		MaxReadLength:                     a.MaxReadLength,
		MaxEvidenceSupportIntervalWidth:   a.MaxEvidenceSupportIntervalWidth,
		AnchorLength:                      a.AnchorLength,
		MaxExpectedBreakendLengthMultiple: a.MaxExpectedBreakendLengthMultiple,
		RetainWidthMultiple:               a.RetainWidthMultiple,
		FlushWidthMultiple:                a.FlushWidthMultiple,
		RemoveMisassembledPartialContigs:  a.RemoveMisassembledPartialContigs,
		QualScale:                         a.QualScale,
		SelfCheck:                         a.SelfCheck,
		Logger:                            logger,
	}
}
