package calltree

import (
	"fmt"
	"strings"

	"github.com/xlab/treeprint"

	"github.com/ethpandaops/execution-calltree/pkg/evm"
)

// RenderTree draws the call tree as indented ASCII, one line per frame.
func RenderTree(result *Result) string {
	tree := treeprint.NewWithRoot(fmt.Sprintf("%s (%d frames, %d instructions, gas %d)",
		result.TxHash, result.Stats.Frames, result.Stats.Instructions, result.Stats.GasUsed))

	if result.Root != nil {
		addFrame(tree, result.Root)
	}

	return tree.String()
}

func addFrame(parent treeprint.Tree, frame *evm.CallFrame) {
	branch := parent.AddBranch(frameLabel(frame))

	for _, child := range frame.Children {
		addFrame(branch, child)
	}
}

func frameLabel(frame *evm.CallFrame) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s gas=%d/%d ops=%d", frame.Kind, frame.GasUsed, frame.GasLimit, len(frame.Instructions))

	if frame.To != evm.ZeroAddress {
		fmt.Fprintf(&b, " to=%s", frame.To)
	}

	if frame.Error != nil {
		fmt.Fprintf(&b, " error=%q", *frame.Error)
	}

	return b.String()
}
