package backend

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Descriptor holds the routing information for a single hostname in the bulk
// configuration.
type Descriptor struct {
	// Endpoint is the network address of the back-end server, including the
	// port number.
	Endpoint string

	// UseProxy indicates that connections to the back-end must be prefixed
	// with a PROXY protocol header.
	UseProxy bool
}

// Table maps hostnames to descriptors. Hostnames are case-sensitive.
type Table map[string]Descriptor

// Lookup returns the descriptor for the given hostname.
func (t Table) Lookup(hostname string) (Descriptor, error) {
	if d, ok := t[hostname]; ok {
		return d, nil
	}

	return Descriptor{}, &LookupError{
		Kind:     UnknownHost,
		Hostname: hostname,
		Reason:   "no endpoint is configured",
	}
}

// Document is a validated bulk configuration document. Each value is the
// original JSON of the hostname's entry, so fields that are not understood
// here are preserved when the document is stored.
type Document map[string]json.RawMessage

// ParseDocument parses a bulk configuration document.
//
// The top level must be an object; if it is not, a *ValidationError is
// returned. Entries that are not objects, or whose "endpoint" field is not a
// string, are dropped and reported in the returned slice; they never cause the
// document as a whole to be rejected.
func ParseDocument(data []byte) (Document, []EntryError, error) {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, nil, &ValidationError{
			Message: "error parsing configuration document",
			Cause:   err,
		}
	} else if entries == nil {
		return nil, nil, &ValidationError{
			Message: "configuration document must be an object",
		}
	}

	doc := Document{}
	var dropped []EntryError

	for hostname, entry := range entries {
		if reason := checkEntry(entry); reason != "" {
			dropped = append(dropped, EntryError{hostname, reason})
			continue
		}
		doc[hostname] = entry
	}

	sort.Slice(dropped, func(i, j int) bool {
		return dropped[i].Hostname < dropped[j].Hostname
	})

	return doc, dropped, nil
}

// Marshal serializes the document. Hostnames are written in sorted order, so
// equal documents produce identical bytes.
func (d Document) Marshal() ([]byte, error) {
	return json.Marshal(map[string]json.RawMessage(d))
}

// DecodeTable builds a lookup table from a stored bulk document.
//
// Entries that do not carry a string endpoint are left out of the table, so
// they resolve as unknown hosts.
func DecodeTable(raw string) (Table, error) {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, err
	}

	table := make(Table, len(entries))

	for hostname, entry := range entries {
		var fields map[string]interface{}
		if err := json.Unmarshal(entry, &fields); err != nil {
			continue
		}

		endpoint, ok := fields["endpoint"].(string)
		if !ok {
			continue
		}

		useProxy, _ := fields["use_proxy"].(bool)

		table[hostname] = Descriptor{
			Endpoint: endpoint,
			UseProxy: useProxy,
		}
	}

	return table, nil
}

func checkEntry(entry json.RawMessage) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(entry, &fields); err != nil || fields == nil {
		return "descriptor is not an object"
	}

	if !isString(fields["endpoint"]) {
		return "endpoint is not string"
	}

	return ""
}

func isString(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '"'
}
