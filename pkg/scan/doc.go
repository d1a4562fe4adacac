// Package scan locates embedded PlantUML blocks in markdown text.
//
// Two markup forms are recognised, each described by a [Syntax]:
//
//	```plantuml            {{#plantuml diagrams/seq.puml}}
//	@startuml
//	Alice -> Bob
//	@enduml
//	```
//
// Each form also has a suppressed opener ("```plantuml,ignore" and
// "\{{#plantuml") whose blocks are reported with [Block.Suppressed] set and
// must be reproduced verbatim by the caller.
//
// # Algorithm
//
// A [Matcher] runs a single Aho-Corasick pass with leftmost-longest
// semantics over the three delimiter literals of its syntax. The [Scanner]
// then pairs the matches:
//
//  1. skip close-only delimiters until an opener is found
//  2. the very next delimiter, of whatever kind, closes the block
//
// Matches that overlap a delimiter already consumed are ignored; the
// automaton reports "{{#plantuml" again inside "\{{#plantuml".
//
// [CodeSpans] finds the code blocks of a document with goldmark so callers
// can leave directives quoted in a ```md or ```text block untouched.
//
// An opener with nothing after it is dropped silently together with the rest
// of the text. Blocks come out in increasing Start order and never overlap;
// two adjacent blocks share a boundary (End of one == Start of the next).
//
// # Usage
//
//	for b := range scan.Fences().Blocks(text) {
//	    fmt.Println(b.Start, b.End, b.Content)
//	}
package scan
