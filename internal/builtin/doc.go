// Package builtin provides the stock node kinds and switch selectors that
// graph files refer to by name.
//
// A Catalog maps a kind such as "lines" or "suffix" to a factory that turns
// the node's schema args into an engine.Func. The CLI, the scenario harness
// and snapshot restore all share the same catalog so a graph built in one
// place can be rebuilt in another.
//
// Node kinds:
//
//	cat [path]        read a file (path from args or the first input)
//	lines             split text into lines
//	sort              sort a list of strings or integers
//	upcase            upper-case text (Unicode aware)
//	prefix <s>        prepend s
//	suffix <s>        append s
//	count             number of elements in a list, runes in a string
//	concat [sep]      join every input with sep
//	echo              return the input (a list when given several)
//	sleep <duration>  wait, honouring Terminate and ctx cancellation
//	fail <message>    always fail
//
// Selectors:
//
//	nonempty  0 for a non-empty value, 1 otherwise
//	parity    0 for even integers, 1 for odd, no selection for non-integers
//	never     no selection; the result goes to default routing
package builtin
