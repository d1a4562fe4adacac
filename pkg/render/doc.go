// Package render turns PlantUML source into image files.
//
// # Overview
//
// A [Target] describes one request: the diagram source, its content
// [identity.Identity], the optional human-readable name from the first line,
// and the output format. A [Gateway] fulfils the request by writing an image
// into a scratch directory and returning the produced path. Placing that file
// under its final, identity-derived name is the cache's job (see package
// cache), which is why gateways are free to name their output however the
// underlying tool prefers.
//
// # Gateways
//
//   - [PlantUML] runs the plantuml executable, either in pipe mode
//     (stdin → stdout) or in file mode (source file in, tool-named image out)
//   - [Graphviz] renders "@startdot" diagrams in-process with go-graphviz
//   - [Dispatch] picks between the two based on the diagram source
//   - [GatewayFunc] adapts a plain function, mostly for tests
//
// A Gateway reports failures as errors with code RENDER_FAILED (the tool
// failed) or ARTIFACT_MISSING (the tool succeeded but left no image).
//
//	gw := render.Dispatch{
//	    Dot:     render.Graphviz{},
//	    Default: render.NewPlantUML("plantuml", true),
//	}
//	path, err := gw.Render(ctx, render.NewTarget(src, render.FormatSVG), scratch)
package render
