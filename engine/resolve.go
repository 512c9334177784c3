package engine

import (
	"github.com/martinemde/conductor/capability"
)

// listFilesCommand lists the workspace through the exec capability when no
// listing capability exists.
const listFilesCommand = "sh -lc 'find . -type f -maxdepth 6 -print | sed -e s,^,./,'"

// Emulation satisfies a missing capability kind through another one.
type Emulation struct {
	Kind Kind
	Via  Kind
	Args func() map[string]any
}

// DefaultEmulations lists the built-in emulations.
var DefaultEmulations = []Emulation{
	{
		Kind: KindList,
		Via:  KindExec,
		Args: func() map[string]any {
			return map[string]any{"args": map[string]any{
				"args":         listFilesCommand,
				"streamStderr": true,
				"timeout":      20000,
			}}
		},
	},
}

// Resolution is a requested call mapped onto the catalogue.
type Resolution struct {
	Requested string
	Entry     capability.Entry
	// Emulated is set when Entry stands in for a different capability; Args
	// then replaces the requested arguments.
	Emulated bool
	Args     map[string]any
}

// Resolver maps requested names onto catalogue entries.
type Resolver struct {
	catalogue  *capability.Catalogue
	vocab      Vocabulary
	emulations []Emulation
}

// NewResolver builds a resolver over a catalogue.
func NewResolver(catalogue *capability.Catalogue, vocab Vocabulary, emulations []Emulation) *Resolver {
	if emulations == nil {
		emulations = DefaultEmulations
	}
	return &Resolver{catalogue: catalogue, vocab: vocab.withDefaults(), emulations: emulations}
}

// Resolve tries an exact match, then a normalized match, then an
// emulation. It reports false when nothing fits.
func (r *Resolver) Resolve(name string) (Resolution, bool) {
	if e, ok := r.lookup(name); ok {
		return Resolution{Requested: name, Entry: e}, true
	}
	kind := r.vocab.Kind(name)
	for _, emu := range r.emulations {
		if emu.Kind != kind {
			continue
		}
		via := r.vocab.NameFor(emu.Via)
		if via == "" {
			continue
		}
		if e, ok := r.lookup(via); ok {
			return Resolution{Requested: name, Entry: e, Emulated: true, Args: emu.Args()}, true
		}
	}
	return Resolution{Requested: name}, false
}

// Entry resolves a vocabulary kind directly, without emulation. Recovery
// routines use it to reach the exec and read capabilities.
func (r *Resolver) Entry(kind Kind) (capability.Entry, bool) {
	name := r.vocab.NameFor(kind)
	if name == "" {
		return capability.Entry{}, false
	}
	return r.lookup(name)
}

func (r *Resolver) lookup(name string) (capability.Entry, bool) {
	if e, ok := r.catalogue.Lookup(name); ok {
		return e, true
	}
	want := normalizeName(name)
	for _, e := range r.catalogue.Entries() {
		if normalizeName(e.Name) == want {
			return e, true
		}
	}
	return capability.Entry{}, false
}

// CoerceArgs reshapes loosely-formed arguments into the nested form the
// container capabilities expect. Arguments that already carry "args" or
// "arguments" pass through, except a bare exec command string or array,
// which is nested. Unknown kinds pass through unchanged.
func CoerceArgs(kind Kind, args map[string]any) map[string]any {
	if args == nil {
		args = map[string]any{}
	}
	if kind == KindExec {
		switch args["args"].(type) {
		case string, []any, []string:
			return execArgs(args)
		}
	}
	if _, ok := args["args"]; ok {
		return args
	}
	if _, ok := args["arguments"]; ok {
		return args
	}

	switch kind {
	case KindWrite:
		inner := map[string]any{}
		putFirst(inner, "path", args, "path", "file_path")
		putFirst(inner, "text", args, "text", "file_content", "content")
		return map[string]any{"args": inner}
	case KindRead, KindDelete:
		inner := map[string]any{}
		putFirst(inner, "path", args, "path", "file_path")
		return map[string]any{"args": inner}
	case KindExec:
		return execArgs(args)
	case KindList, KindInit, KindPing:
		return map[string]any{}
	}
	return args
}

func execArgs(args map[string]any) map[string]any {
	var cmd string
	for _, key := range []string{"args", "command", "cmd"} {
		if c, ok := capability.GetCommandArg(args, key); ok {
			cmd = c
			break
		}
	}
	inner := map[string]any{"args": cmd, "streamStderr": true}
	if v, ok := args["streamStderr"]; ok && v != nil {
		inner["streamStderr"] = v
	}
	if v, ok := args["timeout"]; ok && v != nil {
		inner["timeout"] = v
	}
	return map[string]any{"args": inner}
}

// putFirst copies the first non-nil src[key] into dst[name].
func putFirst(dst map[string]any, name string, src map[string]any, keys ...string) {
	for _, k := range keys {
		if v, ok := src[k]; ok && v != nil {
			dst[name] = v
			return
		}
	}
}

// commandOf extracts the command string from exec arguments in either the
// nested or the flat shape.
func commandOf(args map[string]any) string {
	if cmd, ok := capability.GetCommandArg(capability.Nested(args), "args"); ok {
		return cmd
	}
	if cmd, ok := capability.GetCommandArg(args, "command"); ok {
		return cmd
	}
	return ""
}

// pathOf extracts a path from nested or flat arguments.
func pathOf(args map[string]any) string {
	if p, ok := capability.GetStringArg(capability.Nested(args), "path"); ok {
		return p
	}
	p, _ := capability.GetStringArg(args, "path")
	return p
}

// textOf extracts write content from nested or flat arguments.
func textOf(args map[string]any) (string, bool) {
	if t, ok := capability.GetStringArg(capability.Nested(args), "text"); ok {
		return t, true
	}
	return capability.GetStringArg(args, "text")
}
