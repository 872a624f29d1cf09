// Package plan loads the declarative benchmark plan from HCL.
//
// A plan names the solution under test, the target nodes, the ordered phase
// list, and the monitoring window. It may be a single .hcl file or a
// directory of them; blocks from all files are consolidated into one plan so
// targets and phases can be split across files.
package plan
