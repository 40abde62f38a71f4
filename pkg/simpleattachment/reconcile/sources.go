package reconcile

import (
	"context"

	"github.com/tendant/simple-attachment/pkg/simpleattachment"
)

// StaticSource is a fixed list of referenced paths.
type StaticSource struct {
	SourceName string
	Paths      []string
}

func (s StaticSource) Name() string {
	return s.SourceName
}

func (s StaticSource) StoredPaths(ctx context.Context) ([]string, error) {
	out := make([]string, len(s.Paths))
	copy(out, s.Paths)
	return out, nil
}

// FuncSource adapts a function to the PathSource interface.
type FuncSource struct {
	SourceName string
	Fn         func(ctx context.Context) ([]string, error)
}

func (s FuncSource) Name() string {
	return s.SourceName
}

func (s FuncSource) StoredPaths(ctx context.Context) ([]string, error) {
	return s.Fn(ctx)
}

var (
	_ simpleattachment.PathSource = StaticSource{}
	_ simpleattachment.PathSource = FuncSource{}
)
