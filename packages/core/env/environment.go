package env

import (
	"sort"
)

// ItemType is the type tag attached to every environment item.
const ItemType = "any"

// Item is one environment entry as exchanged with hook scripts.
type Item struct {
	Type  string `json:"type"`
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Environment is an ordered key/value store owned by a single run.
// It is not safe for concurrent use; a run mutates it sequentially.
type Environment struct {
	items []Item
}

func New() *Environment {
	return &Environment{}
}

// FromInputs seeds an environment from plan input values. Keys are added
// in sorted order so runs are reproducible.
func FromInputs(inputs map[string]any) *Environment {
	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	e := New()
	for _, k := range keys {
		e.Set(k, inputs[k])
	}
	return e
}

// Set overwrites the value for key, or appends a new item.
func (e *Environment) Set(key string, value any) {
	for i := range e.items {
		if e.items[i].Key == key {
			e.items[i].Value = value
			return
		}
	}
	e.items = append(e.items, Item{Type: ItemType, Key: key, Value: value})
}

func (e *Environment) Get(key string) (any, bool) {
	for _, item := range e.items {
		if item.Key == key {
			return item.Value, true
		}
	}
	return nil, false
}

// Unset removes key if present.
func (e *Environment) Unset(key string) {
	for i := range e.items {
		if e.items[i].Key == key {
			e.items = append(e.items[:i], e.items[i+1:]...)
			return
		}
	}
}

// Items returns a copy of the items in insertion order.
func (e *Environment) Items() []Item {
	out := make([]Item, len(e.items))
	copy(out, e.items)
	return out
}

// Replace swaps the whole item list, as done after a hook has run.
// Items with an empty key are dropped; duplicate keys keep the last value.
func (e *Environment) Replace(items []Item) {
	e.items = nil
	for _, item := range items {
		if item.Key == "" {
			continue
		}
		e.Set(item.Key, item.Value)
	}
}

// Data returns the environment as a key/value map.
func (e *Environment) Data() map[string]any {
	data := make(map[string]any, len(e.items))
	for _, item := range e.items {
		data[item.Key] = item.Value
	}
	return data
}

func (e *Environment) Len() int {
	return len(e.items)
}

// Clone returns an independent copy. Values are shared, not deep-copied.
func (e *Environment) Clone() *Environment {
	return &Environment{items: e.Items()}
}
