package checkpoint

import (
	"fmt"

	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"

	"github.com/born-ml/cifar/internal/loader"
	"github.com/born-ml/cifar/internal/tensor"
)

// stateDictKey is the wrapper key training scripts commonly save under.
const stateDictKey = "state_dict"

// StateDict converts a decoded checkpoint object into a parameter mapping.
//
// Accepted shapes are a SafeTensors map, a pickled dict or OrderedDict of
// tensors, either of those wrapped as {"state_dict": ...}, or a whole
// pickled nn.Module, whose parameters and persistent buffers are collected
// under dotted submodule names the way Module.state_dict() does. Anything
// else yields a *TypeAssertionError. name identifies the checkpoint in
// errors.
func StateDict(name string, obj any) (map[string]*tensor.RawTensor, error) {
	switch v := obj.(type) {
	case map[string]*tensor.RawTensor:
		return v, nil

	case *types.OrderedDict:
		if inner, ok := v.Get(stateDictKey); ok {
			return StateDict(name, inner)
		}
		entries := make([]entry, 0, v.List.Len())
		for e := v.List.Front(); e != nil; e = e.Next() {
			item := e.Value.(*types.OrderedDictEntry)
			entries = append(entries, entry{item.Key, item.Value})
		}
		return fromEntries(name, entries)

	case *types.Dict:
		if inner, ok := v.Get(stateDictKey); ok {
			return StateDict(name, inner)
		}
		keys := v.Keys()
		entries := make([]entry, 0, len(keys))
		for _, k := range keys {
			entries = append(entries, entry{k, v.MustGet(k)})
		}
		return fromEntries(name, entries)

	case map[any]any:
		if inner, ok := v[stateDictKey]; ok {
			return StateDict(name, inner)
		}
		entries := make([]entry, 0, len(v))
		for k, val := range v {
			entries = append(entries, entry{k, val})
		}
		return fromEntries(name, entries)

	case *loader.Object:
		if !isModule(v) {
			return nil, &TypeAssertionError{Key: name, Got: describe(obj)}
		}
		var entries []entry
		if err := moduleEntries(name, v, "", &entries); err != nil {
			return nil, err
		}
		return fromEntries(name, entries)

	case nil:
		return nil, &TypeAssertionError{Key: name, Got: "None"}

	default:
		return nil, &TypeAssertionError{Key: name, Got: describe(obj)}
	}
}

type entry struct {
	key   any
	value any
}

func fromEntries(name string, entries []entry) (map[string]*tensor.RawTensor, error) {
	state := make(map[string]*tensor.RawTensor, len(entries))
	for _, e := range entries {
		key, ok := e.key.(string)
		if !ok {
			return nil, &TypeAssertionError{Key: name, Entry: fmt.Sprint(e.key), Got: "a non-string key"}
		}

		pt, ok := e.value.(*pytorch.Tensor)
		if !ok {
			return nil, &TypeAssertionError{Key: name, Entry: key, Got: describe(e.value)}
		}

		raw, err := loader.TorchTensor(pt)
		if err != nil {
			return nil, fmt.Errorf("checkpoint %s: entry %q: %w", name, key, err)
		}
		state[key] = raw
	}
	return state, nil
}

// Attributes nn.Module keeps its state in.
const (
	parametersAttr    = "_parameters"
	buffersAttr       = "_buffers"
	modulesAttr       = "_modules"
	nonPersistentAttr = "_non_persistent_buffers_set"
)

func isModule(obj *loader.Object) bool {
	_, ok := obj.Attr(modulesAttr)
	if !ok {
		_, ok = obj.Attr(parametersAttr)
	}
	return ok
}

// moduleEntries appends the parameters and persistent buffers of m and its
// submodules, keyed by prefix plus their dotted path.
func moduleEntries(name string, m *loader.Object, prefix string, entries *[]entry) error {
	skip := func(string) bool { return false }
	if v, ok := m.Attr(nonPersistentAttr); ok {
		if set, ok := v.(*types.Set); ok {
			skip = func(key string) bool { return set.Has(key) }
		}
	}

	for _, attr := range []string{parametersAttr, buffersAttr} {
		err := eachItem(name, m, prefix, attr, func(key string, value any) error {
			// Unset optional tensors, e.g. bias=False
			if value == nil || (attr == buffersAttr && skip(key)) {
				return nil
			}
			*entries = append(*entries, entry{prefix + key, value})
			return nil
		})
		if err != nil {
			return err
		}
	}

	return eachItem(name, m, prefix, modulesAttr, func(key string, value any) error {
		if value == nil {
			return nil
		}
		child, ok := value.(*loader.Object)
		if !ok || !isModule(child) {
			return &TypeAssertionError{Key: name, Entry: prefix + key, Got: describe(value)}
		}
		return moduleEntries(name, child, prefix+key+".", entries)
	})
}

// eachItem calls f for every string-keyed item of the dict attribute attr,
// in insertion order. A missing attribute has no items.
func eachItem(name string, m *loader.Object, prefix, attr string, f func(key string, value any) error) error {
	v, ok := m.Attr(attr)
	if !ok || v == nil {
		return nil
	}

	var items []entry
	switch d := v.(type) {
	case *types.OrderedDict:
		for e := d.List.Front(); e != nil; e = e.Next() {
			item := e.Value.(*types.OrderedDictEntry)
			items = append(items, entry{item.Key, item.Value})
		}
	case *types.Dict:
		for _, item := range *d {
			items = append(items, entry{item.Key, item.Value})
		}
	default:
		return &TypeAssertionError{Key: name, Entry: prefix + attr, Got: describe(v)}
	}

	for _, item := range items {
		key, ok := item.key.(string)
		if !ok {
			return &TypeAssertionError{Key: name, Entry: prefix + fmt.Sprint(item.key), Got: "a non-string key"}
		}
		if err := f(key, item.value); err != nil {
			return err
		}
	}
	return nil
}

// describe names a decoded object's type for error messages.
func describe(obj any) string {
	switch v := obj.(type) {
	case *types.GenericClass:
		return fmt.Sprintf("an instance of %s.%s", v.Module, v.Name)
	case *loader.Object:
		return "an instance of " + v.String()
	case *types.List, []any:
		return "a list"
	case *types.Tuple:
		return "a tuple"
	default:
		return fmt.Sprintf("%T", obj)
	}
}
