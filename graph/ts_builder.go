package graph

import "sync/atomic"

// OutputBuilder constructs an output port tree for a node being built.
type OutputBuilder interface {
	// MakeInstance creates the output owned by the given node.
	MakeInstance(owner Node) TimeSeriesOutput

	// ReleaseInstance releases resources the build created.
	ReleaseInstance(o TimeSeriesOutput)
}

// InputBuilder constructs the input bundle for a node being built.
type InputBuilder interface {
	// MakeInstance creates the input bundle owned by the given node.
	MakeInstance(owner Node) *BundleInput

	// ReleaseInstance releases resources the build created.
	ReleaseInstance(in *BundleInput)
}

// OutputBuilderFunc adapts a function to OutputBuilder with a no-op
// release.
type OutputBuilderFunc func(owner Node) TimeSeriesOutput

// MakeInstance implements OutputBuilder.
func (f OutputBuilderFunc) MakeInstance(owner Node) TimeSeriesOutput { return f(owner) }

// ReleaseInstance implements OutputBuilder.
func (f OutputBuilderFunc) ReleaseInstance(TimeSeriesOutput) {}

// ValueOutputBuilder builds scalar outputs.
func ValueOutputBuilder() OutputBuilder {
	return OutputBuilderFunc(NewValueOutput)
}

// BundleOutputBuilder builds bundle outputs with a scalar child per field.
func BundleOutputBuilder(fields ...string) OutputBuilder {
	return OutputBuilderFunc(func(owner Node) TimeSeriesOutput {
		children := make(map[string]TimeSeriesOutput, len(fields))
		for _, f := range fields {
			children[f] = NewValueOutput(owner)
		}
		return NewBundleOutput(owner, fields, children)
	})
}

// ListOutputBuilder builds fixed-size list outputs whose elements are
// produced by the element builder.
func ListOutputBuilder(size int, elem OutputBuilder) OutputBuilder {
	return OutputBuilderFunc(func(owner Node) TimeSeriesOutput {
		elements := make([]TimeSeriesOutput, size)
		for i := range elements {
			elements[i] = elem.MakeInstance(owner)
		}
		return NewListOutput(owner, elements)
	})
}

// DictOutputBuilder builds dynamically keyed dict outputs.
func DictOutputBuilder() OutputBuilder {
	return OutputBuilderFunc(NewDictOutput)
}

// SetOutputBuilder builds set outputs.
func SetOutputBuilder() OutputBuilder {
	return OutputBuilderFunc(NewSetOutput)
}

// RefOutputBuilder builds reference outputs.
func RefOutputBuilder() OutputBuilder {
	return OutputBuilderFunc(NewRefOutput)
}

// InputBuilderFunc adapts a function to InputBuilder with a no-op release.
type InputBuilderFunc func(owner Node) *BundleInput

// MakeInstance implements InputBuilder.
func (f InputBuilderFunc) MakeInstance(owner Node) *BundleInput { return f(owner) }

// ReleaseInstance implements InputBuilder.
func (f InputBuilderFunc) ReleaseInstance(*BundleInput) {}

// BundleInputBuilder builds the node input bundle with an unbound scalar
// input per field.
func BundleInputBuilder(fields ...string) InputBuilder {
	return InputBuilderFunc(func(owner Node) *BundleInput {
		return NewBundleInput(owner, fields)
	})
}

// TimeSeriesBuilderConstructors is the pair of constructors an embedding
// may declare to substitute alternate port implementations.
type TimeSeriesBuilderConstructors struct {
	// Output builds the default scalar output.
	Output func(owner Node) TimeSeriesOutput

	// Input builds the node input bundle for the given fields.
	Input func(owner Node, fields []string) *BundleInput
}

// declaredTSBuilders is the process-wide declaration slot for time-series
// builders. At most one declaration is active at a time.
var declaredTSBuilders atomic.Pointer[TimeSeriesBuilderConstructors]

// DeclareTimeSeriesBuilders installs alternate port constructors. Returns
// ErrAlreadyDeclared if a declaration is already active.
func DeclareTimeSeriesBuilders(c TimeSeriesBuilderConstructors) error {
	if !declaredTSBuilders.CompareAndSwap(nil, &c) {
		return ErrAlreadyDeclared
	}
	return nil
}

// UnDeclareTimeSeriesBuilders clears the declaration slot.
func UnDeclareTimeSeriesBuilders() {
	declaredTSBuilders.Store(nil)
}

// IsTimeSeriesBuildersDeclared reports whether a declaration is active.
func IsTimeSeriesBuildersDeclared() bool {
	return declaredTSBuilders.Load() != nil
}

// MakeOutput builds a scalar output using the declared constructor if one
// is active, otherwise the default.
func MakeOutput(owner Node) TimeSeriesOutput {
	if c := declaredTSBuilders.Load(); c != nil && c.Output != nil {
		return c.Output(owner)
	}
	return NewValueOutput(owner)
}

// MakeInput builds a node input bundle using the declared constructor if
// one is active, otherwise the default.
func MakeInput(owner Node, fields []string) *BundleInput {
	if c := declaredTSBuilders.Load(); c != nil && c.Input != nil {
		return c.Input(owner, fields)
	}
	return NewBundleInput(owner, fields)
}
