// Package compiler turns CUE sale manifests into install parameters.
//
// A manifest file declares one or more sales under the top-level "sale"
// field:
//
//	sale: genesis: {
//		dao:    "0x00000000000000000000000000000000000000d0"
//		asset:  "0x00000000000000000000000000000000000000a0"
//		rate:   1000
//		cap:    "10000000000000000000"
//		window: {start: 100, end: 200}
//	}
//
// Loading unifies the file with the embedded #Sale schema, so unknown
// fields and wrong kinds fail with a positioned CompileError. Compiled
// manifests are then checked field by field by Validate.
package compiler
