package config

import (
	"encoding/json"
	"fmt"
	"maps"

	"github.com/Kronos-Integration/service-sub000/errors"
)

// ServiceConfig is the declaration of one service. Keys other than name,
// type, autostart and endpoints are collected into Attributes and handed to
// the service's Configure.
type ServiceConfig struct {
	Name       string
	Type       string
	Autostart  *bool
	Endpoints  map[string]EndpointDefinition
	Attributes map[string]any
}

// EndpointDefinition declares an endpoint and its connections. In a config
// file it is either an object or a bare target expression string.
type EndpointDefinition struct {
	Direction    string                  `json:"direction,omitempty"`
	Default      bool                    `json:"default,omitempty"`
	Single       bool                    `json:"single,omitempty"`
	Connect      any                     `json:"connect,omitempty"`
	Interceptors []InterceptorDefinition `json:"interceptors,omitempty"`
}

// InterceptorDefinition names an interceptor type plus its attributes. In a
// config file it is either an object with a type key or a bare type string.
type InterceptorDefinition struct {
	Type       string
	Attributes map[string]any
}

// AutostartOr returns the autostart flag or def when it was not set
func (sc ServiceConfig) AutostartOr(def bool) bool {
	if sc.Autostart == nil {
		return def
	}
	return *sc.Autostart
}

// Validate checks the declaration
func (sc ServiceConfig) Validate() error {
	if sc.Name == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: name is required", errors.ErrMissingConfig),
			"ServiceConfig", "Validate", "name check")
	}
	if sc.Type == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: service %s has no type", errors.ErrMissingConfig, sc.Name),
			"ServiceConfig", "Validate", "type check")
	}
	for name, ep := range sc.Endpoints {
		if name == "" {
			return errors.WrapInvalid(
				fmt.Errorf("%w: service %s has an unnamed endpoint", errors.ErrInvalidConfig, sc.Name),
				"ServiceConfig", "Validate", "endpoint check")
		}
		for _, ic := range ep.Interceptors {
			if ic.Type == "" {
				return errors.WrapInvalid(
					fmt.Errorf("%w: endpoint %s.%s has an interceptor without type", errors.ErrInvalidConfig, sc.Name, name),
					"ServiceConfig", "Validate", "interceptor check")
			}
		}
	}
	return nil
}

// Clone returns a deep copy
func (sc ServiceConfig) Clone() ServiceConfig {
	data, err := json.Marshal(sc)
	if err != nil {
		clone := sc
		clone.Attributes = maps.Clone(sc.Attributes)
		clone.Endpoints = maps.Clone(sc.Endpoints)
		return clone
	}
	var clone ServiceConfig
	if err := json.Unmarshal(data, &clone); err != nil {
		return sc
	}
	return clone
}

// MarshalJSON writes the fixed keys and the attributes at the same level
func (sc ServiceConfig) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(sc.Attributes)+4)
	maps.Copy(out, sc.Attributes)
	if sc.Name != "" {
		out["name"] = sc.Name
	}
	out["type"] = sc.Type
	if sc.Autostart != nil {
		out["autostart"] = *sc.Autostart
	}
	if len(sc.Endpoints) > 0 {
		out["endpoints"] = sc.Endpoints
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the fixed keys and collects every other key as an attribute
func (sc *ServiceConfig) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.WrapInvalid(err, "ServiceConfig", "UnmarshalJSON", "object decoding")
	}

	*sc = ServiceConfig{}
	for key, value := range raw {
		var err error
		switch key {
		case "name":
			err = json.Unmarshal(value, &sc.Name)
		case "type":
			err = json.Unmarshal(value, &sc.Type)
		case "autostart":
			var autostart bool
			err = json.Unmarshal(value, &autostart)
			sc.Autostart = &autostart
		case "endpoints":
			err = json.Unmarshal(value, &sc.Endpoints)
		default:
			var attr any
			err = json.Unmarshal(value, &attr)
			if sc.Attributes == nil {
				sc.Attributes = make(map[string]any)
			}
			sc.Attributes[key] = attr
		}
		if err != nil {
			return errors.WrapInvalid(err, "ServiceConfig", "UnmarshalJSON", fmt.Sprintf("key %q decoding", key))
		}
	}
	return nil
}

// UnmarshalJSON accepts a target expression string or a definition object.
// "connected" is read as an alias of "connect".
func (ed *EndpointDefinition) UnmarshalJSON(data []byte) error {
	var target string
	if err := json.Unmarshal(data, &target); err == nil {
		*ed = EndpointDefinition{Connect: target}
		return nil
	}

	type alias EndpointDefinition
	aux := struct {
		*alias
		Connected any `json:"connected,omitempty"`
	}{alias: (*alias)(ed)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return errors.WrapInvalid(err, "EndpointDefinition", "UnmarshalJSON", "definition decoding")
	}
	if ed.Connect == nil && aux.Connected != nil {
		ed.Connect = aux.Connected
	}
	return nil
}

// MarshalJSON writes a bare type string when there are no attributes
func (id InterceptorDefinition) MarshalJSON() ([]byte, error) {
	if len(id.Attributes) == 0 {
		return json.Marshal(id.Type)
	}
	out := maps.Clone(id.Attributes)
	out["type"] = id.Type
	return json.Marshal(out)
}

// UnmarshalJSON accepts a type string or an object with a type key
func (id *InterceptorDefinition) UnmarshalJSON(data []byte) error {
	var typ string
	if err := json.Unmarshal(data, &typ); err == nil {
		*id = InterceptorDefinition{Type: typ}
		return nil
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.WrapInvalid(err, "InterceptorDefinition", "UnmarshalJSON", "definition decoding")
	}

	*id = InterceptorDefinition{}
	if t, ok := raw["type"].(string); ok {
		id.Type = t
	}
	delete(raw, "type")
	if len(raw) > 0 {
		id.Attributes = raw
	}
	return nil
}
