package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sgct-project/combi/pkg/scheme"
)

var validateCmd = &cobra.Command{
	Use:   "validate [scheme file]",
	Short: "check a scheme file's invariants",
	Long:  `nada`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s, static, err := scheme.LoadFile(args[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		if err := scheme.Validate(s); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		mode := "dynamic"
		if static {
			mode = "static"
		}
		fmt.Printf("ok: %d terms, dim %d, %s assignment\n", len(s.Terms), s.Dim, mode)
	},
}

var decomposeCmd = &cobra.Command{
	Use:   "decompose [scheme file]",
	Short: "split a scheme file into per-system parts and their common subspaces",
	Long:  `nada`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		v := parseCmd(cmd)
		full, _, err := scheme.LoadFile(args[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		if err := scheme.Validate(full); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		parts, common, err := scheme.DecomposeAll(full, v.GetInt("systemCount"))
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		for i, p := range parts {
			out := fmt.Sprintf("%s.system%d", v.GetString("out"), i)
			if err := scheme.SaveFile(out, p, false); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			fmt.Printf("system %d: %d terms -> %s\n", i, len(p.Terms), out)
		}
		fmt.Printf("%d common subspaces\n", len(common))
	},
}

func init() {
	decomposeCmd.Flags().Int("systemCount", 2, "number of systems to split across")
	decomposeCmd.Flags().String("out", "scheme", "output file prefix")
	addCmd(validateCmd)
	addCmd(decomposeCmd)
}
