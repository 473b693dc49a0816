package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/execution-calltree/pkg/ethereum/execution"
	"github.com/ethpandaops/execution-calltree/pkg/evm"
	"github.com/ethpandaops/execution-calltree/pkg/processor/calltree"
)

var (
	reconstructFile         string
	reconstructFormat       string
	reconstructFetch        bool
	reconstructInstructions bool
)

var reconstructCmd = &cobra.Command{
	Use:   "reconstruct [<txhash>...]",
	Short: "Rebuilds and prints call trees from persisted traces.",
	Long: `Rebuilds the call tree of each transaction from the trace store, or of a
single debug_traceTransaction response file given with --file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if reconstructFormat != "json" && reconstructFormat != "tree" {
			return fmt.Errorf("unknown format %q, expected json or tree", reconstructFormat)
		}

		if (reconstructFile == "") == (len(args) == 0) {
			return fmt.Errorf("give either transaction hashes or --file")
		}

		if reconstructFile != "" {
			result, err := reconstructFromFile(reconstructFile)
			if err != nil {
				return err
			}

			return printResult(cmd.OutOrStdout(), result)
		}

		config, err := loadConfig(false)
		if err != nil {
			return err
		}

		p, stop, err := newOfflineProcessor(cmd.Context(), config, reconstructFetch)
		if err != nil {
			return err
		}
		defer stop()

		results, err := p.ProcessTransactions(cmd.Context(), args)
		if err != nil {
			return err
		}

		for _, result := range results {
			if err := printResult(cmd.OutOrStdout(), result); err != nil {
				return err
			}
		}

		return nil
	},
}

func init() {
	reconstructCmd.Flags().StringVar(&reconstructFile, "file", "", "debug_traceTransaction response file to reconstruct")
	reconstructCmd.Flags().StringVar(&reconstructFormat, "format", "json", "output format: json or tree")
	reconstructCmd.Flags().BoolVar(&reconstructFetch, "fetch", false, "fetch traces missing from the store from the configured nodes")
	reconstructCmd.Flags().BoolVar(&reconstructInstructions, "instructions", false, "include instructions in json output")

	rootCmd.AddCommand(reconstructCmd)
}

func reconstructFromFile(path string) (*calltree.Result, error) {
	if err := execution.ValidateTraceFile(path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace file: %w", err)
	}

	root, stats, err := calltree.ReconstructDocument(data)
	if err != nil {
		return nil, err
	}

	return &calltree.Result{TxHash: path, Stats: stats, Root: root}, nil
}

func printResult(w io.Writer, result *calltree.Result) error {
	if reconstructFormat == "tree" {
		_, err := fmt.Fprint(w, calltree.RenderTree(result))

		return err
	}

	if !reconstructInstructions {
		result.Root.Walk(func(frame *evm.CallFrame, _ int) bool {
			frame.Instructions = []evm.Instruction{}

			return true
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(result)
}
