package backend

import "encoding/json"

// EndpointList is the decoded form of a per-host endpoint list descriptor:
//
//	{"endpoints": ["10.0.0.1:443", "10.0.0.2:443"]}
//
// Elements are kept undecoded until one is chosen, since only the chosen
// element must be a string.
type EndpointList []json.RawMessage

// DecodeEndpointList parses a per-host registry value.
func DecodeEndpointList(hostname, raw string) (EndpointList, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil || fields == nil {
		return nil, invalidBackend(hostname, "value is not an object")
	}

	value, ok := fields["endpoints"]
	if !ok {
		return nil, invalidBackend(hostname, "no endpoints field")
	}

	var list EndpointList
	if err := json.Unmarshal(value, &list); err != nil || list == nil {
		return nil, invalidBackend(hostname, "endpoints is not a list")
	}

	if len(list) == 0 {
		return nil, invalidBackend(hostname, "endpoints is empty")
	}

	return list, nil
}

// At returns the element at index i, if it is a string.
func (l EndpointList) At(i int) (string, bool) {
	var s string
	if !isString(l[i]) {
		return "", false
	}
	if err := json.Unmarshal(l[i], &s); err != nil {
		return "", false
	}
	return s, true
}

func invalidBackend(hostname, reason string) error {
	return &LookupError{
		Kind:     InvalidBackend,
		Hostname: hostname,
		Reason:   reason,
	}
}
