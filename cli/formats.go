package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/celluledoc/docflow/config"
	"github.com/celluledoc/docflow/factory"
	"github.com/celluledoc/docflow/formats"
)

// Version is set at build time:
//
//	go build -ldflags "-X 'github.com/celluledoc/docflow/cli.Version=1.2.0'"
var Version = "dev"

func newFormatsCommand() *cobra.Command {
	var builtin bool
	cmd := &cobra.Command{
		Use:   "formats",
		Short: "Print the adapter declarations as YAML",
		Long: `Prints the declaration of every extract format, in the layout accepted by
the adapters section of the DOCFLOW_CONFIG file. Overrides from that file
are applied unless --builtin is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := factory.NewAdapterFactory()
			var out []byte
			var err error
			if builtin {
				out, err = f.Dump()
			} else {
				out, err = effectiveDeclarations(f)
			}
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().BoolVar(&builtin, "builtin", false, "ignore configuration overrides")
	return cmd
}

func effectiveDeclarations(f *factory.AdapterFactory) ([]byte, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	adapters, err := f.Adapters(cfg.Adapters)
	if err != nil {
		return nil, err
	}
	file := factory.File{Adapters: make(map[string]factory.DeclarationYAML, len(adapters))}
	for _, kind := range formats.Kinds {
		file.Adapters[kind] = f.ToYAML(adapters[kind].Declaration())
	}
	return yaml.Marshal(file)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Display the application version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, "docflow")
			fmt.Fprintf(w, "Version:    %s\n", Version)
			fmt.Fprintf(w, "Go Version: %s\n", runtime.Version())
		},
	}
}
