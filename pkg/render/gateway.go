package render

import (
	"context"
	"strings"
)

// Gateway turns diagram source into an image file.
//
// Render writes its output somewhere inside dir, a scratch directory owned
// by the caller, and returns the path of the file it produced. The caller
// moves that file to its final location; a Gateway never decides where an
// artifact lives.
type Gateway interface {
	Render(ctx context.Context, t Target, dir string) (string, error)
}

// GatewayFunc adapts a function to the Gateway interface.
type GatewayFunc func(ctx context.Context, t Target, dir string) (string, error)

// Render calls f.
func (f GatewayFunc) Render(ctx context.Context, t Target, dir string) (string, error) {
	return f(ctx, t, dir)
}

// Dispatch routes "@startdot" diagrams to Dot and everything else to
// Default. A nil Dot sends all diagrams to Default.
type Dispatch struct {
	Dot     Gateway
	Default Gateway
}

// Render implements Gateway.
func (d Dispatch) Render(ctx context.Context, t Target, dir string) (string, error) {
	if d.Dot != nil && IsDot(t.Content) {
		return d.Dot.Render(ctx, t, dir)
	}
	return d.Default.Render(ctx, t, dir)
}

// IsDot reports whether content is a PlantUML-wrapped Graphviz diagram.
func IsDot(content string) bool {
	return strings.HasPrefix(strings.TrimLeft(content, " \t\r\n"), "@startdot")
}

var (
	_ Gateway = GatewayFunc(nil)
	_ Gateway = Dispatch{}
	_ Gateway = (*PlantUML)(nil)
	_ Gateway = (*Graphviz)(nil)
)
