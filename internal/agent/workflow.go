// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package agent

import (
	"fmt"
	"strings"
)

// Mermaid renders the workflow as a Mermaid state diagram. The bound
// annotates the loop-back edges.
func Mermaid(maxIterations int) string {
	var b strings.Builder
	b.WriteString("stateDiagram-v2\n")
	fmt.Fprintf(&b, "    [*] --> %s\n", StatePlanning)
	for _, t := range transitions {
		label := t.Label
		if t.To == StatePlanning {
			label = fmt.Sprintf("%s (iteration < %d)", label, maxIterations)
		}
		fmt.Fprintf(&b, "    %s --> %s: %s\n", t.From, t.To, label)
	}
	fmt.Fprintf(&b, "    %s --> [*]\n", StateDone)
	fmt.Fprintf(&b, "    %s --> [*]\n", StateFailed)
	return b.String()
}
