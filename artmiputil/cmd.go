/*
Copyright © 2024 the ARTMIPStandardizer authors.
This file is part of ARTMIPStandardizer.

ARTMIPStandardizer is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

ARTMIPStandardizer is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with ARTMIPStandardizer.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package artmiputil holds the command-line interface and work-plan logic
// for the ARTMIP standardizer.
package artmiputil

import (
	"fmt"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	artmip "github.com/taobrienlbl/ARTMIPStandardizer"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "InputBase",
			usage: `
              InputBase is the directory holding the algorithm
              contribution files.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "ReferenceTemplate",
			usage: `
              ReferenceTemplate is the glob pattern matching the reference
              files for each experiment. It may contain the [EXPERIMENT]
              placeholder.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "OutputTemplate",
			usage: `
              OutputTemplate is the output path pattern. It must contain
              the [YEAR] placeholder and may contain the [EXPERIMENT] and
              [ALGORITHM] placeholders.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "algs",
			usage: `
              algs lists the algorithms to run on. The default is all of
              them.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "exps",
			usage: `
              exps lists the experiments to run on. The default is all of
              them.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "CompressionLevel",
			usage: `
              CompressionLevel is the compression level for output
              partitions written to ".gz" paths. Zero disables
              compression.`,
			defaultVal: 4,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "DecodeFilesSeparately",
			usage: `
              DecodeFilesSeparately decodes each contribution file's time
              coordinate independently before concatenation, for
              algorithms whose files use inconsistent time encodings.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "JobIndex",
			usage: `
              JobIndex is this process's rank among JobCount cooperating
              processes; the work plan is split statically across them.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "JobCount",
			usage: `
              JobCount is the number of cooperating processes.`,
			defaultVal: 1,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "TagFillValue",
			usage: `
              TagFillValue, when set, is written as the fill value of the
              AR tag variable. When empty no fill value is written.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "verbose",
			usage: `
              verbose enables progress reporting.`,
			shorthand:  "v",
			defaultVal: true,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("ARTMIP")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case []string:
				if option.shorthand == "" {
					set.StringSlice(option.name, option.defaultVal.([]string), option.usage)
				} else {
					set.StringSliceP(option.name, option.shorthand, option.defaultVal.([]string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(runCmd)
	Root.AddCommand(listAlgsCmd)
	Root.AddCommand(listExpsCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("artmiputil: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "artmipstd",
	Short: "Standardize ARTMIP atmospheric-river detection output.",
	Long: `artmipstd reconciles the output files of ARTMIP atmospheric-river
detection algorithms with the reference dataset the algorithms were run on,
writing one standardized NetCDF file per calendar year.

Configuration can be changed by using a configuration file (and providing
the path to the file using the --config flag), by using command-line
arguments, or by setting environment variables in the format 'ARTMIP_var'
where 'var' is the name of the variable to be set.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setConfig()
	},
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("artmipstd v%s\n", artmip.Version)
	},
}

var listAlgsCmd = &cobra.Command{
	Use:   "list-algs",
	Short: "List all valid algorithms.",
	Run: func(cmd *cobra.Command, args []string) {
		for _, alg := range Algorithms {
			fmt.Println(alg)
		}
	},
}

var listExpsCmd = &cobra.Command{
	Use:   "list-exps",
	Short: "List all valid experiments.",
	Run: func(cmd *cobra.Command, args []string) {
		for _, exp := range Experiments {
			fmt.Println(exp)
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Standardize the selected algorithms and experiments.",
	Long: `run builds the (experiment, algorithm) work plan, takes this
process's static share of it, and runs one standardization per work item
in sequence.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logrus.StandardLogger()
		if Cfg.GetBool("verbose") {
			log.SetLevel(logrus.DebugLevel)
		}

		items, err := BuildWorkPlan(
			Cfg.GetString("InputBase"),
			Cfg.GetString("ReferenceTemplate"),
			Cfg.GetString("OutputTemplate"),
			Cfg.GetStringSlice("exps"),
			Cfg.GetStringSlice("algs"),
		)
		if err != nil {
			return err
		}
		mine, err := Scatter(items, Cfg.GetInt("JobIndex"), Cfg.GetInt("JobCount"))
		if err != nil {
			return err
		}
		log.Infof("assigned %d of %d work items", len(mine), len(items))

		extra, err := extraMetadata()
		if err != nil {
			return err
		}
		opts := RunOptions{
			CompressionLevel:      Cfg.GetInt("CompressionLevel"),
			DecodeFilesSeparately: Cfg.GetBool("DecodeFilesSeparately"),
			Verbose:               Cfg.GetBool("verbose"),
			ExtraMetadata:         extra,
		}
		if fv := Cfg.GetString("TagFillValue"); fv != "" {
			val, err := cast.ToFloat64E(fv)
			if err != nil {
				return fmt.Errorf("artmiputil: TagFillValue: %v", err)
			}
			opts.TagFillValue = &val
		}
		return RunWorkPlan(mine, opts, log)
	},
}

// extraMetadata reads per-variable attribute overrides from the
// configuration file (variable name → attribute name → value). They are
// applied on top of the per-experiment defaults.
func extraMetadata() (map[string]map[string]string, error) {
	overrides := make(map[string]map[string]string)
	for v, raw := range Cfg.GetStringMap("MetadataOverrides") {
		attrs, err := cast.ToStringMapStringE(raw)
		if err != nil {
			return nil, fmt.Errorf("artmiputil: MetadataOverrides.%s: %v", v, err)
		}
		overrides[v] = attrs
	}
	return overrides, nil
}
