package graph

import (
	"fmt"
	"time"
)

// TimeSeriesOutput is the capability surface the runtime needs from an
// output port. Outputs record the engine time of their last modification and
// wake subscribed nodes when a result is applied, which is how a tick
// propagates to downstream consumers within the same evaluation pass.
type TimeSeriesOutput interface {
	// OwningNode returns the node this output belongs to.
	OwningNode() Node

	// Valid reports whether the output has ever had a value applied.
	Valid() bool

	// Modified reports whether the output ticked at the current engine time.
	Modified() bool

	// LastModifiedTime returns the engine time of the most recent tick,
	// or MinDT if the output has never ticked.
	LastModifiedTime() time.Time

	// Value returns the current snapshot of the output.
	Value() any

	// DeltaValue returns the portion of the value that ticked at the
	// current engine time, or nil if the output is not modified.
	DeltaValue() any

	// ApplyResult writes a value into the output and records the
	// modification at the current engine time. Subscribed nodes are
	// scheduled for evaluation at the current time.
	ApplyResult(v any) error

	// SubscribeNode registers a node to be woken when this output ticks.
	SubscribeNode(n Node)

	// UnsubscribeNode removes a previously subscribed node.
	UnsubscribeNode(n Node)

	// Resolve returns the output addressed by the given path, or
	// ErrPathNotFound if the path does not land within this port tree.
	Resolve(p Path) (TimeSeriesOutput, error)
}

// TimeSeriesInput is the capability surface the runtime needs from an input
// port. An input observes a bound output; making it active subscribes the
// owning node to the output's ticks.
type TimeSeriesInput interface {
	// OwningNode returns the node this input belongs to.
	OwningNode() Node

	// Valid reports whether the bound output has ever had a value.
	Valid() bool

	// Modified reports whether the bound output ticked at the current
	// engine time.
	Modified() bool

	// Value returns the bound output's current snapshot.
	Value() any

	// DeltaValue returns the bound output's delta for the current tick.
	DeltaValue() any

	// Active reports whether modifications of the bound output wake the
	// owning node.
	Active() bool

	// MakeActive subscribes the owning node to the bound output.
	MakeActive()

	// MakePassive unsubscribes the owning node from the bound output.
	MakePassive()

	// BindOutput binds this input to an upstream output. Binding is
	// performed once, during graph construction.
	BindOutput(o TimeSeriesOutput) error

	// Output returns the bound output, or nil if unbound.
	Output() TimeSeriesOutput

	// Resolve returns the input addressed by the given path, or
	// ErrPathNotFound if the path does not land within this port tree.
	Resolve(p Path) (TimeSeriesInput, error)
}

// Remove is the sentinel written into a dict output to delete a key. The key
// must exist.
var Remove = removeSentinel{strict: true}

// RemoveIfExists is the sentinel written into a dict output to delete a key
// if present.
var RemoveIfExists = removeSentinel{strict: false}

type removeSentinel struct{ strict bool }

// SetDelta describes one tick of a set-valued output: the elements added and
// the elements removed at that instant.
type SetDelta struct {
	Added   []any
	Removed []any
}

// TimeSeriesReference is the value carried by a reference output. It is an
// indirection to another output, used to stub wiring between nested graphs.
type TimeSeriesReference struct {
	Output TimeSeriesOutput
}

// outputState carries the tick bookkeeping shared by all output kinds.
type outputState struct {
	owner        Node
	lastModified time.Time
	subscribers  []Node
}

func (s *outputState) OwningNode() Node { return s.owner }

func (s *outputState) LastModifiedTime() time.Time {
	if s.lastModified.IsZero() {
		return MinDT
	}
	return s.lastModified
}

func (s *outputState) Valid() bool {
	return !s.lastModified.IsZero()
}

func (s *outputState) Modified() bool {
	ctx := s.clock()
	if ctx == nil || s.lastModified.IsZero() {
		return false
	}
	return s.lastModified.Equal(ctx.CurrentEngineTime())
}

func (s *outputState) SubscribeNode(n Node) {
	for _, sub := range s.subscribers {
		if sub == n {
			return
		}
	}
	s.subscribers = append(s.subscribers, n)
}

func (s *outputState) UnsubscribeNode(n Node) {
	for i, sub := range s.subscribers {
		if sub == n {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			return
		}
	}
}

func (s *outputState) clock() ExecutionContext {
	if s.owner == nil || s.owner.Graph() == nil {
		return nil
	}
	return s.owner.Graph().Context()
}

// markModified stamps the current engine time and wakes subscribers.
func (s *outputState) markModified() {
	ctx := s.clock()
	if ctx == nil {
		return
	}
	s.lastModified = ctx.CurrentEngineTime()
	for _, sub := range s.subscribers {
		sub.Notify()
	}
}

// valueOutput is the scalar output port.
type valueOutput struct {
	outputState
	value any
}

// NewValueOutput creates a scalar output owned by the given node.
func NewValueOutput(owner Node) TimeSeriesOutput {
	return &valueOutput{outputState: outputState{owner: owner}}
}

func (o *valueOutput) Value() any { return o.value }

func (o *valueOutput) DeltaValue() any {
	if !o.Modified() {
		return nil
	}
	return o.value
}

func (o *valueOutput) ApplyResult(v any) error {
	if v == nil {
		return nil
	}
	o.value = v
	o.markModified()
	return nil
}

func (o *valueOutput) Resolve(p Path) (TimeSeriesOutput, error) {
	if len(p) == 0 {
		return o, nil
	}
	return nil, fmt.Errorf("%w: %s on scalar output", ErrPathNotFound, p)
}

// bundleOutput is a named-record output with a fixed field set.
type bundleOutput struct {
	outputState
	fields   []string
	children map[string]TimeSeriesOutput
}

// NewBundleOutput creates a bundle output over the given child outputs,
// keyed by field name and ordered by fields.
func NewBundleOutput(owner Node, fields []string, children map[string]TimeSeriesOutput) TimeSeriesOutput {
	return &bundleOutput{
		outputState: outputState{owner: owner},
		fields:      fields,
		children:    children,
	}
}

func (o *bundleOutput) Valid() bool {
	for _, f := range o.fields {
		if o.children[f].Valid() {
			return true
		}
	}
	return false
}

func (o *bundleOutput) Modified() bool {
	for _, f := range o.fields {
		if o.children[f].Modified() {
			return true
		}
	}
	return false
}

func (o *bundleOutput) LastModifiedTime() time.Time {
	last := MinDT
	for _, f := range o.fields {
		last = maxTime(last, o.children[f].LastModifiedTime())
	}
	return last
}

func (o *bundleOutput) Value() any {
	out := make(map[string]any, len(o.fields))
	for _, f := range o.fields {
		if c := o.children[f]; c.Valid() {
			out[f] = c.Value()
		}
	}
	return out
}

func (o *bundleOutput) DeltaValue() any {
	out := make(map[string]any)
	for _, f := range o.fields {
		if c := o.children[f]; c.Modified() {
			out[f] = c.Value()
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (o *bundleOutput) ApplyResult(v any) error {
	if v == nil {
		return nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return fmt.Errorf("bundle output expects map[string]any, got %T", v)
	}
	for k, cv := range m {
		c, ok := o.children[k]
		if !ok {
			return fmt.Errorf("%w: bundle has no field %q", ErrPathNotFound, k)
		}
		if err := c.ApplyResult(cv); err != nil {
			return err
		}
	}
	return nil
}

func (o *bundleOutput) SubscribeNode(n Node) {
	for _, f := range o.fields {
		o.children[f].SubscribeNode(n)
	}
}

func (o *bundleOutput) UnsubscribeNode(n Node) {
	for _, f := range o.fields {
		o.children[f].UnsubscribeNode(n)
	}
}

func (o *bundleOutput) Resolve(p Path) (TimeSeriesOutput, error) {
	if len(p) == 0 {
		return o, nil
	}
	seg := p[0]
	var name string
	if seg.IsNamed() {
		name = seg.Name
	} else if seg.Index >= 0 && seg.Index < len(o.fields) {
		name = o.fields[seg.Index]
	} else {
		return nil, fmt.Errorf("%w: %s in bundle", ErrPathNotFound, seg)
	}
	c, ok := o.children[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s in bundle", ErrPathNotFound, seg)
	}
	return c.Resolve(p[1:])
}

// listOutput is a fixed-size output of homogeneous elements.
type listOutput struct {
	outputState
	elements []TimeSeriesOutput
}

// NewListOutput creates a list output of the given fixed elements.
func NewListOutput(owner Node, elements []TimeSeriesOutput) TimeSeriesOutput {
	return &listOutput{outputState: outputState{owner: owner}, elements: elements}
}

func (o *listOutput) Valid() bool {
	for _, e := range o.elements {
		if e.Valid() {
			return true
		}
	}
	return false
}

func (o *listOutput) Modified() bool {
	for _, e := range o.elements {
		if e.Modified() {
			return true
		}
	}
	return false
}

func (o *listOutput) LastModifiedTime() time.Time {
	last := MinDT
	for _, e := range o.elements {
		last = maxTime(last, e.LastModifiedTime())
	}
	return last
}

func (o *listOutput) Value() any {
	out := make([]any, len(o.elements))
	for i, e := range o.elements {
		if e.Valid() {
			out[i] = e.Value()
		}
	}
	return out
}

func (o *listOutput) DeltaValue() any {
	out := make(map[int]any)
	for i, e := range o.elements {
		if e.Modified() {
			out[i] = e.Value()
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (o *listOutput) ApplyResult(v any) error {
	if v == nil {
		return nil
	}
	switch m := v.(type) {
	case map[int]any:
		for i, cv := range m {
			if i < 0 || i >= len(o.elements) {
				return fmt.Errorf("%w: index %d in list of %d", ErrPathNotFound, i, len(o.elements))
			}
			if err := o.elements[i].ApplyResult(cv); err != nil {
				return err
			}
		}
	case []any:
		if len(m) != len(o.elements) {
			return fmt.Errorf("list output expects %d elements, got %d", len(o.elements), len(m))
		}
		for i, cv := range m {
			if err := o.elements[i].ApplyResult(cv); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("list output expects []any or map[int]any, got %T", v)
	}
	return nil
}

func (o *listOutput) SubscribeNode(n Node) {
	for _, e := range o.elements {
		e.SubscribeNode(n)
	}
}

func (o *listOutput) UnsubscribeNode(n Node) {
	for _, e := range o.elements {
		e.UnsubscribeNode(n)
	}
}

func (o *listOutput) Resolve(p Path) (TimeSeriesOutput, error) {
	if len(p) == 0 {
		return o, nil
	}
	seg := p[0]
	if seg.IsNamed() || seg.Index < 0 || seg.Index >= len(o.elements) {
		return nil, fmt.Errorf("%w: %s in list of %d", ErrPathNotFound, seg, len(o.elements))
	}
	return o.elements[seg.Index].Resolve(p[1:])
}

// dictOutput is a dynamically keyed output. Children are created on demand
// when a key first ticks and removed via the Remove sentinels.
type dictOutput struct {
	outputState
	children map[any]TimeSeriesOutput
	// removed holds keys deleted at the current engine time.
	removed     []any
	removedTime time.Time
}

// NewDictOutput creates an empty dict output.
func NewDictOutput(owner Node) TimeSeriesOutput {
	return &dictOutput{
		outputState: outputState{owner: owner},
		children:    make(map[any]TimeSeriesOutput),
	}
}

func (o *dictOutput) Value() any {
	out := make(map[any]any, len(o.children))
	for k, c := range o.children {
		if c.Valid() {
			out[k] = c.Value()
		}
	}
	return out
}

func (o *dictOutput) DeltaValue() any {
	if !o.Modified() {
		return nil
	}
	out := make(map[any]any)
	for k, c := range o.children {
		if c.Modified() {
			out[k] = c.Value()
		}
	}
	return out
}

// RemovedKeys returns the keys removed at the current engine time.
func (o *dictOutput) RemovedKeys() []any {
	ctx := o.clock()
	if ctx == nil || !o.removedTime.Equal(ctx.CurrentEngineTime()) {
		return nil
	}
	return o.removed
}

func (o *dictOutput) ApplyResult(v any) error {
	if v == nil {
		return nil
	}
	m, ok := v.(map[any]any)
	if !ok {
		return fmt.Errorf("dict output expects map[any]any, got %T", v)
	}
	for k, cv := range m {
		if rm, isRemove := cv.(removeSentinel); isRemove {
			if _, exists := o.children[k]; !exists {
				if rm.strict {
					return fmt.Errorf("%w: remove of absent key %v", ErrPathNotFound, k)
				}
				continue
			}
			delete(o.children, k)
			o.recordRemoval(k)
			continue
		}
		c, exists := o.children[k]
		if !exists {
			c = NewValueOutput(o.owner)
			o.children[k] = c
		}
		if err := c.ApplyResult(cv); err != nil {
			return err
		}
	}
	o.markModified()
	return nil
}

func (o *dictOutput) recordRemoval(k any) {
	ctx := o.clock()
	if ctx == nil {
		return
	}
	now := ctx.CurrentEngineTime()
	if !o.removedTime.Equal(now) {
		o.removed = o.removed[:0]
		o.removedTime = now
	}
	o.removed = append(o.removed, k)
}

func (o *dictOutput) Resolve(p Path) (TimeSeriesOutput, error) {
	if len(p) == 0 {
		return o, nil
	}
	seg := p[0]
	if !seg.IsNamed() {
		return nil, fmt.Errorf("%w: dict keys resolve by name, got %s", ErrPathNotFound, seg)
	}
	c, ok := o.children[seg.Name]
	if !ok {
		return nil, fmt.Errorf("%w: key %q in dict", ErrPathNotFound, seg.Name)
	}
	return c.Resolve(p[1:])
}

// setOutput is a set-valued output whose ticks carry element additions and
// removals.
type setOutput struct {
	outputState
	elements map[any]struct{}
	delta    SetDelta
	deltaAt  time.Time
}

// NewSetOutput creates an empty set output.
func NewSetOutput(owner Node) TimeSeriesOutput {
	return &setOutput{
		outputState: outputState{owner: owner},
		elements:    make(map[any]struct{}),
	}
}

func (o *setOutput) Value() any {
	out := make(map[any]struct{}, len(o.elements))
	for k := range o.elements {
		out[k] = struct{}{}
	}
	return out
}

func (o *setOutput) DeltaValue() any {
	if !o.Modified() {
		return nil
	}
	return o.delta
}

func (o *setOutput) ApplyResult(v any) error {
	if v == nil {
		return nil
	}
	d, ok := v.(SetDelta)
	if !ok {
		return fmt.Errorf("set output expects SetDelta, got %T", v)
	}
	applied := SetDelta{}
	for _, e := range d.Added {
		if _, exists := o.elements[e]; !exists {
			o.elements[e] = struct{}{}
			applied.Added = append(applied.Added, e)
		}
	}
	for _, e := range d.Removed {
		if _, exists := o.elements[e]; exists {
			delete(o.elements, e)
			applied.Removed = append(applied.Removed, e)
		}
	}
	if len(applied.Added) == 0 && len(applied.Removed) == 0 {
		return nil
	}
	ctx := o.clock()
	if ctx != nil && o.deltaAt.Equal(ctx.CurrentEngineTime()) {
		// Multiple applies within one tick accumulate.
		applied.Added = append(o.delta.Added, applied.Added...)
		applied.Removed = append(o.delta.Removed, applied.Removed...)
	}
	o.delta = applied
	if ctx != nil {
		o.deltaAt = ctx.CurrentEngineTime()
	}
	o.markModified()
	return nil
}

func (o *setOutput) Resolve(p Path) (TimeSeriesOutput, error) {
	if len(p) == 0 {
		return o, nil
	}
	return nil, fmt.Errorf("%w: %s on set output", ErrPathNotFound, p)
}

// refOutput carries a TimeSeriesReference to another output.
type refOutput struct {
	outputState
	ref TimeSeriesReference
}

// NewRefOutput creates a reference output.
func NewRefOutput(owner Node) TimeSeriesOutput {
	return &refOutput{outputState: outputState{owner: owner}}
}

func (o *refOutput) Value() any { return o.ref }

func (o *refOutput) DeltaValue() any {
	if !o.Modified() {
		return nil
	}
	return o.ref
}

func (o *refOutput) ApplyResult(v any) error {
	switch r := v.(type) {
	case nil:
		return nil
	case TimeSeriesReference:
		o.ref = r
	case TimeSeriesOutput:
		o.ref = TimeSeriesReference{Output: r}
	default:
		return fmt.Errorf("reference output expects TimeSeriesReference, got %T", v)
	}
	o.markModified()
	return nil
}

func (o *refOutput) Resolve(p Path) (TimeSeriesOutput, error) {
	if len(p) == 0 {
		return o, nil
	}
	if o.ref.Output != nil {
		return o.ref.Output.Resolve(p)
	}
	return nil, fmt.Errorf("%w: %s on unbound reference", ErrPathNotFound, p)
}

// valueInput observes a single bound output.
type valueInput struct {
	owner  Node
	bound  TimeSeriesOutput
	active bool
}

// NewValueInput creates an unbound scalar input owned by the given node.
func NewValueInput(owner Node) TimeSeriesInput {
	return &valueInput{owner: owner}
}

func (i *valueInput) OwningNode() Node { return i.owner }

func (i *valueInput) Valid() bool {
	return i.bound != nil && i.bound.Valid()
}

func (i *valueInput) Modified() bool {
	return i.bound != nil && i.bound.Modified()
}

func (i *valueInput) Value() any {
	if i.bound == nil {
		return nil
	}
	return i.bound.Value()
}

func (i *valueInput) DeltaValue() any {
	if i.bound == nil {
		return nil
	}
	return i.bound.DeltaValue()
}

func (i *valueInput) Active() bool { return i.active }

func (i *valueInput) MakeActive() {
	if i.active {
		return
	}
	i.active = true
	if i.bound != nil {
		i.bound.SubscribeNode(i.owner)
	}
}

func (i *valueInput) MakePassive() {
	if !i.active {
		return
	}
	i.active = false
	if i.bound != nil {
		i.bound.UnsubscribeNode(i.owner)
	}
}

func (i *valueInput) BindOutput(o TimeSeriesOutput) error {
	if i.bound != nil {
		return fmt.Errorf("input is already bound")
	}
	i.bound = o
	if i.active {
		o.SubscribeNode(i.owner)
	}
	return nil
}

func (i *valueInput) Output() TimeSeriesOutput { return i.bound }

func (i *valueInput) Resolve(p Path) (TimeSeriesInput, error) {
	if len(p) == 0 {
		return i, nil
	}
	return nil, fmt.Errorf("%w: %s on scalar input", ErrPathNotFound, p)
}

// BundleInput is the composite of all time-series inputs of a node, keyed by
// argument name. It is the root of every node's input port tree.
type BundleInput struct {
	owner    Node
	fields   []string
	children map[string]TimeSeriesInput
}

// NewBundleInput creates a bundle input with an unbound scalar input per
// field, ordered by fields.
func NewBundleInput(owner Node, fields []string) *BundleInput {
	children := make(map[string]TimeSeriesInput, len(fields))
	for _, f := range fields {
		children[f] = NewValueInput(owner)
	}
	return &BundleInput{owner: owner, fields: fields, children: children}
}

// OwningNode returns the node this input belongs to.
func (b *BundleInput) OwningNode() Node { return b.owner }

// Fields returns the input names in declaration order.
func (b *BundleInput) Fields() []string { return b.fields }

// Ref returns the child input with the given name, or nil.
func (b *BundleInput) Ref(name string) TimeSeriesInput {
	return b.children[name]
}

// Valid reports whether every child input is valid.
func (b *BundleInput) Valid() bool {
	for _, f := range b.fields {
		if !b.children[f].Valid() {
			return false
		}
	}
	return true
}

// Modified reports whether any child input ticked at the current engine time.
func (b *BundleInput) Modified() bool {
	for _, f := range b.fields {
		if b.children[f].Modified() {
			return true
		}
	}
	return false
}

// Value returns a snapshot of all valid child values keyed by name.
func (b *BundleInput) Value() any {
	out := make(map[string]any, len(b.fields))
	for _, f := range b.fields {
		if c := b.children[f]; c.Valid() {
			out[f] = c.Value()
		}
	}
	return out
}

// DeltaValue returns the child values that ticked at the current engine time.
func (b *BundleInput) DeltaValue() any {
	out := make(map[string]any)
	for _, f := range b.fields {
		if c := b.children[f]; c.Modified() {
			out[f] = c.Value()
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Active reports whether any child input is active.
func (b *BundleInput) Active() bool {
	for _, f := range b.fields {
		if b.children[f].Active() {
			return true
		}
	}
	return false
}

// MakeActive activates every child input.
func (b *BundleInput) MakeActive() {
	for _, f := range b.fields {
		b.children[f].MakeActive()
	}
}

// MakePassive deactivates every child input.
func (b *BundleInput) MakePassive() {
	for _, f := range b.fields {
		b.children[f].MakePassive()
	}
}

// BindOutput is not supported on the bundle root; children are bound
// individually through edge wiring.
func (b *BundleInput) BindOutput(TimeSeriesOutput) error {
	return fmt.Errorf("bundle input children are bound individually")
}

// Output returns nil; the bundle root has no single bound output.
func (b *BundleInput) Output() TimeSeriesOutput { return nil }

// Resolve returns the input addressed by the given path.
func (b *BundleInput) Resolve(p Path) (TimeSeriesInput, error) {
	if len(p) == 0 {
		return b, nil
	}
	seg := p[0]
	var name string
	if seg.IsNamed() {
		name = seg.Name
	} else if seg.Index >= 0 && seg.Index < len(b.fields) {
		name = b.fields[seg.Index]
	} else {
		return nil, fmt.Errorf("%w: %s in bundle input", ErrPathNotFound, seg)
	}
	c, ok := b.children[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s in bundle input", ErrPathNotFound, seg)
	}
	return c.Resolve(p[1:])
}
