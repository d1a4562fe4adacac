// Package pkg provides the core libraries for pumlbook, an mdBook
// preprocessor that turns PlantUML source into images.
//
// # Overview
//
// A chapter goes through two passes. Directives ({{#plantuml path}}) are
// expanded first, then fenced ```plantuml blocks are rendered. Each diagram
// is rendered once per distinct source and reused from the artifact cache
// afterwards.
//
//	chapter markdown
//	       ↓
//	  [scan]      find directives and fences
//	       ↓
//	  [include]   load directive files, recursively, up to a depth limit
//	       ↓
//	  [render]    plantuml or graphviz, keyed by [identity]
//	       ↓
//	  [cache]     <identity>.<format> in .plantuml_cache
//	       ↓
//	  [rewrite]   replace the block with ![name](data-uri or link)
//
// [pipeline] runs the passes for one document, [book] speaks the mdBook
// protocol and fans chapters out, and [config] reads book.toml.
//
// # Supporting packages
//
//   - [errors] structured error codes shared by every package
//   - [observability] hooks for render, cache and HTTP events
//   - [buildinfo] version information injected at build time
//
// # Quick Start
//
//	store, _ := cache.Prepare(".plantuml_cache")
//	runner, _ := pipeline.NewRunner(store, render.NewPlantUML("plantuml", true), pipeline.Options{})
//	out, stats := runner.Process(ctx, pipeline.Document{Path: "intro.md", Dir: "src", Content: md})
package pkg
