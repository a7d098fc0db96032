// SPDX-License-Identifier: MIT
package analysis

// Analyzer is the contract stream runners depend on. *Engine satisfies it;
// tests substitute fakes.
type Analyzer interface {
	// Analyze processes one mono chunk and returns a result, or false when
	// the chunk is too short to analyse.
	Analyze(chunk []float32) (*Result, bool)
}

// Compile-time checks for interface implementations.
var _ Analyzer = (*Engine)(nil)
