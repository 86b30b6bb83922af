// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package addon

import (
	"context"
	"sort"
	"strings"
	"sync/atomic"
	"weak"

	"github.com/Masterminds/semver/v3"

	"github.com/holomush/addonhost/pkg/addonapi"
)

// supportedABI is the range of descriptor formats this host understands.
var supportedABI = mustConstraint(">= 1.0, < 2.0")

func mustConstraint(c string) *semver.Constraints {
	cs, err := semver.NewConstraint(c)
	if err != nil {
		panic(err)
	}
	return cs
}

// Capability is one bound export of an addon. It refers to its addon weakly:
// the reference is used for dispatch and never keeps the addon alive.
type Capability struct {
	Name    string
	Kind    addonapi.Kind
	Params  []addonapi.Type
	Returns addonapi.Type
	Value   any
	Event   string
	Symbol  string

	addonName string
	owner     weak.Pointer[Handle]
}

// Addon returns the name of the owning addon.
func (c *Capability) Addon() string { return c.addonName }

// Binding is the scripting-visible namespace of one addon's capabilities.
type Binding struct {
	Name       string
	Version    string
	ABI        string
	Descriptor *addonapi.Descriptor

	caps       map[string]*Capability
	namespaces map[string]bool
	events     map[string]bool
	owner      weak.Pointer[Handle]
	released   atomic.Bool
}

// Bind invokes the module's entry point and builds its capability namespace.
// Any defect in the description is reported as MalformedModule.
func Bind(ctx context.Context, h *Handle) (*Binding, error) {
	raw, err := h.module.Describe(ctx)
	if err != nil {
		return nil, malformed(h.path).Hint("entry point missing or failed").Wrap(err)
	}
	if err := addonapi.ValidateSchema(raw); err != nil {
		return nil, malformed(h.path).Wrap(err)
	}
	desc, err := addonapi.Decode(raw)
	if err != nil {
		return nil, malformed(h.path).Wrap(err)
	}

	var supports func(addonapi.Type) bool
	if ts, ok := h.module.(TypeSupporter); ok {
		supports = ts.SupportsType
	}
	b, err := newBinding(desc, supports)
	if err != nil {
		return nil, err
	}

	b.owner = weak.Make(h)
	for _, c := range b.caps {
		c.owner = b.owner
	}
	h.setName(desc.Name)
	h.retain()
	return b, nil
}

func newBinding(desc *addonapi.Descriptor, supports func(addonapi.Type) bool) (*Binding, error) {
	abi, err := semver.NewVersion(desc.ABI)
	if err != nil {
		return nil, malformed(desc.Name).With("abi", desc.ABI).Wrap(err)
	}
	if !supportedABI.Check(abi) {
		return nil, malformed(desc.Name).With("abi", desc.ABI).Errorf("unsupported descriptor format %s", desc.ABI)
	}
	if strings.TrimSpace(desc.Version) == "" {
		return nil, malformed(desc.Name).Errorf("missing version")
	}
	if _, err := semver.NewVersion(desc.Version); err != nil {
		return nil, malformed(desc.Name).With("version", desc.Version).Wrap(err)
	}

	b := &Binding{
		Name:       desc.Name,
		Version:    desc.Version,
		ABI:        desc.ABI,
		Descriptor: desc,
		caps:       make(map[string]*Capability, len(desc.Capabilities)),
		namespaces: make(map[string]bool),
		events:     map[string]bool{addonapi.DefaultEvent: true},
	}
	for _, e := range desc.Events {
		if e == "" {
			return nil, malformed(desc.Name).Errorf("empty event name")
		}
		b.events[e] = true
	}

	for i := range desc.Capabilities {
		c, err := b.bindOne(desc.Name, &desc.Capabilities[i], supports)
		if err != nil {
			return nil, err
		}
		if _, dup := b.caps[c.Name]; dup {
			return nil, malformed(desc.Name).With("capability", c.Name).Errorf("duplicate capability %q", c.Name)
		}
		b.caps[c.Name] = c
	}

	// Register every dotted prefix as a namespace and reject clashes with
	// leaf capabilities.
	for name := range b.caps {
		parts := strings.Split(name, ".")
		for i := 1; i < len(parts); i++ {
			prefix := strings.Join(parts[:i], ".")
			if _, clash := b.caps[prefix]; clash {
				return nil, malformed(desc.Name).With("capability", prefix).Errorf("capability %q is also a namespace", prefix)
			}
			b.namespaces[prefix] = true
		}
	}
	return b, nil
}

func (b *Binding) bindOne(addonName string, decl *addonapi.Capability, supports func(addonapi.Type) bool) (*Capability, error) {
	if decl.Name == "" || strings.HasPrefix(decl.Name, ".") || strings.HasSuffix(decl.Name, ".") || strings.Contains(decl.Name, "..") {
		return nil, malformed(addonName).With("capability", decl.Name).Errorf("invalid capability name %q", decl.Name)
	}

	c := &Capability{
		Name:      decl.Name,
		Kind:      decl.Kind,
		Params:    append([]addonapi.Type(nil), decl.Params...),
		Returns:   decl.Returns,
		Event:     decl.Event,
		Symbol:    decl.Symbol,
		addonName: addonName,
	}
	if c.Symbol == "" {
		c.Symbol = decl.Name
	}

	switch decl.Kind {
	case addonapi.KindProperty:
		if len(decl.Params) > 0 {
			return nil, malformed(addonName).With("capability", decl.Name).Errorf("property %q cannot take parameters", decl.Name)
		}
		if decl.Value == nil {
			return nil, malformed(addonName).With("capability", decl.Name).Errorf("property %q has no value", decl.Name)
		}
		c.Value = addonapi.Normalize(decl.Value)
		if c.Returns != "" && c.Returns != addonapi.TypeAny && !c.Returns.Accepts(c.Value) {
			return nil, malformed(addonName).With("capability", decl.Name).
				Errorf("property %q declared %s but holds %s", decl.Name, c.Returns, addonapi.Describe(c.Value))
		}
	case addonapi.KindFunction, addonapi.KindTask:
		if decl.Kind == addonapi.KindTask {
			if c.Event == "" {
				c.Event = addonapi.DefaultEvent
			}
			if !b.events[c.Event] {
				return nil, malformed(addonName).With("capability", decl.Name).Errorf("task %q emits undeclared event %q", decl.Name, c.Event)
			}
		}
		for i, p := range decl.Params {
			if !p.Valid() || (supports != nil && !supports(p)) {
				return nil, malformed(addonName).With("capability", decl.Name).With("index", i).
					Errorf("unsupported parameter type %q", p)
			}
		}
		if r := decl.Returns; r != "" && r != addonapi.TypeVoid && (!r.Valid() || (supports != nil && !supports(r))) {
			return nil, malformed(addonName).With("capability", decl.Name).Errorf("unsupported return type %q", r)
		}
	default:
		return nil, malformed(addonName).With("capability", decl.Name).Errorf("unknown capability kind %q", decl.Kind)
	}
	return c, nil
}

// Lookup returns the capability with the given (possibly dotted) name.
func (b *Binding) Lookup(name string) (*Capability, error) {
	if c, ok := b.caps[name]; ok {
		return c, nil
	}
	return nil, errorf(CodeUnknownCapability).
		With("addon", b.Name).
		With("capability", name).
		Errorf("%s has no capability %q", b.Name, name)
}

// IsNamespace reports whether name is a prefix of dotted capability names.
func (b *Binding) IsNamespace(name string) bool { return b.namespaces[name] }

// HasEvent reports whether the addon declares the event stream.
func (b *Binding) HasEvent(name string) bool { return b.events[name] }

// Capabilities returns all capabilities sorted by name.
func (b *Binding) Capabilities() []*Capability {
	out := make([]*Capability, 0, len(b.caps))
	for _, c := range b.caps {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Release drops the binding's reference on its handle. Safe to call twice.
func (b *Binding) Release() {
	if !b.released.CompareAndSwap(false, true) {
		return
	}
	if h := b.owner.Value(); h != nil {
		h.release()
	}
}
