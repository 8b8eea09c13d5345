package engine

import "context"

type nodeKey struct{}

type pathKey struct{}

// withNode returns ctx carrying the node currently being called.
func withNode(ctx context.Context, n *Node) context.Context {
	return context.WithValue(ctx, nodeKey{}, n)
}

// NodeFromContext returns the node whose callable is running, if any.
func NodeFromContext(ctx context.Context) (*Node, bool) {
	n, ok := ctx.Value(nodeKey{}).(*Node)
	return n, ok
}

// FromContext returns the engine driving the current callable, if any.
func FromContext(ctx context.Context) (*Engine, bool) {
	n, ok := NodeFromContext(ctx)
	if !ok {
		return nil, false
	}
	return n.engine, true
}

func resolutionPath(ctx context.Context) []string {
	path, _ := ctx.Value(pathKey{}).([]string)
	return path
}

func withResolutionPath(ctx context.Context, path []string) context.Context {
	return context.WithValue(ctx, pathKey{}, path)
}

type dispatchKey struct{}

func withDispatch(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, dispatchKey{}, key)
}

func dispatchFromContext(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(dispatchKey{}).(string)
	return key, ok
}
