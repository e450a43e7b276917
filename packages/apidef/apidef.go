package apidef

import (
	"strings"

	"github.com/abdul-hamid-achik/callspec/packages/core/plan"
)

// Definition describes one supported API version.
type Definition struct {
	Type            string `yaml:"type" json:"type"`
	MajorVersion    int    `yaml:"majorVersion" json:"majorVersion"`
	MinorVersion    int    `yaml:"minorVersion" json:"minorVersion"`
	Asynchronous    bool   `yaml:"asynchronous" json:"asynchronous"`
	CallbackMapFile string `yaml:"callbackMapFile" json:"callbackMapFile"`
}

// Callback is the expected callback for an operation.
type Callback struct {
	Method      string `yaml:"method" json:"method"`
	Path        string `yaml:"path" json:"path,omitempty"`
	PathPattern string `yaml:"pathPattern" json:"pathPattern"`
}

// Operation holds the callbacks answering one method of an operation.
type Operation struct {
	SuccessCallback *Callback `yaml:"successCallback" json:"successCallback"`
	ErrorCallback   *Callback `yaml:"errorCallback" json:"errorCallback"`
}

// CallbackMap is keyed by operation path, then lowercase method.
type CallbackMap map[string]map[string]*Operation

// Lookup returns the operation entry, or nil when the map has none or it
// lacks either callback.
func (m CallbackMap) Lookup(operationPath, method string) *Operation {
	methods, ok := m[operationPath]
	if !ok {
		return nil
	}
	op := methods[strings.ToLower(method)]
	if op == nil || op.SuccessCallback == nil || op.ErrorCallback == nil {
		return nil
	}
	return op
}

// Provider serves API definitions and their callback maps.
type Provider interface {
	Definitions() ([]Definition, error)
	CallbackMap(def *Definition) (CallbackMap, error)
}

// Lookup finds the definition matching a request's API version.
func Lookup(defs []Definition, v plan.APIVersion) (*Definition, bool) {
	for i := range defs {
		d := &defs[i]
		if d.MajorVersion == v.MajorVersion && d.MinorVersion == v.MinorVersion && d.Type == v.Type {
			return d, true
		}
	}
	return nil, false
}

// Static is an in-memory Provider.
type Static struct {
	Defs []Definition
	Maps map[string]CallbackMap
}

func (s *Static) Definitions() ([]Definition, error) {
	return s.Defs, nil
}

func (s *Static) CallbackMap(def *Definition) (CallbackMap, error) {
	return s.Maps[def.CallbackMapFile], nil
}
