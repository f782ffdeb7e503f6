package factstore

import (
	"strings"

	"github.com/tidwall/gjson"
)

var (
	memoryListPaths   = []string{"memories", "data.memories", "items", "results"}
	retrievedListKeys = []string{"retrieved_memories", "retrievedMemories", "memory_hits", "retrievals", "results"}
	retrievedNestKeys = []string{"data", "message", "response", "raw_response", "run", "output"}
	memoryTextKeys    = []string{"content", "memory", "text"}
	assistantTextKeys = []string{"assistant_text", "assistant_response", "response", "text", "content", "message"}
)

// NormalizeMemories turns a memory-listing payload into records. It accepts
// a bare array or an object carrying the list under one of the known keys.
func NormalizeMemories(body []byte) []Record {
	if !gjson.ValidBytes(body) {
		return nil
	}
	root := gjson.ParseBytes(body)
	if root.IsArray() {
		return wrapAll(root)
	}
	if !root.IsObject() {
		return nil
	}
	for _, p := range memoryListPaths {
		if list := root.Get(p); list.IsArray() {
			return wrapAll(list)
		}
	}
	return nil
}

// ExtractRetrieved digs the memories the service consulted out of a message
// response. The list may sit at the top level or nested under an envelope.
func ExtractRetrieved(body []byte) []Record {
	if !gjson.ValidBytes(body) {
		return nil
	}
	return extractRetrieved(gjson.ParseBytes(body))
}

func extractRetrieved(v gjson.Result) []Record {
	switch {
	case v.IsObject():
		for _, k := range retrievedListKeys {
			if list := v.Get(k); list.IsArray() {
				if recs := wrapAll(list); len(recs) > 0 {
					return recs
				}
			}
		}
		for _, k := range retrievedNestKeys {
			if out := extractRetrieved(v.Get(k)); len(out) > 0 {
				return out
			}
		}
	case v.IsArray():
		for _, item := range v.Array() {
			if out := extractRetrieved(item); len(out) > 0 {
				return out
			}
		}
	}
	return nil
}

// ExtractAssistantText finds the assistant's reply in a message response.
func ExtractAssistantText(body []byte) string {
	if !gjson.ValidBytes(body) {
		return strings.TrimSpace(string(body))
	}
	return assistantText(gjson.ParseBytes(body))
}

func assistantText(v gjson.Result) string {
	switch {
	case v.Type == gjson.String:
		return strings.TrimSpace(v.Str)
	case v.IsObject():
		for _, k := range assistantTextKeys {
			field := v.Get(k)
			if s := nonEmptyString(field); s != "" {
				return s
			}
			if field.IsObject() {
				if s := nonEmptyString(field.Get("content")); s != "" {
					return s
				}
				if s := nonEmptyString(field.Get("text")); s != "" {
					return s
				}
			}
		}
		if msgs := v.Get("messages"); msgs.IsArray() {
			for _, m := range msgs.Array() {
				if m.Get("role").String() != "assistant" {
					continue
				}
				if s := nonEmptyString(m.Get("content")); s != "" {
					return s
				}
				if s := nonEmptyString(m.Get("text")); s != "" {
					return s
				}
			}
		}
		if data := v.Get("data"); data.IsObject() {
			return assistantText(data)
		}
	case v.IsArray():
		for _, item := range v.Array() {
			if s := assistantText(item); s != "" {
				return s
			}
		}
	}
	return ""
}

// identifier returns the first non-empty field among paths of an object payload.
func identifier(body []byte, paths ...string) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return ""
	}
	for _, p := range paths {
		if v := root.Get(p); v.Exists() && v.Type != gjson.Null {
			if s := strings.TrimSpace(v.String()); s != "" {
				return s
			}
		}
	}
	return ""
}

func wrapAll(list gjson.Result) []Record {
	var out []Record
	list.ForEach(func(_, item gjson.Result) bool {
		if r, ok := wrapItem(item); ok {
			out = append(out, r)
		}
		return true
	})
	return out
}

func wrapItem(item gjson.Result) (Record, bool) {
	if item.Type == gjson.String {
		s := strings.TrimSpace(item.Str)
		return Record{Memory: s}, s != ""
	}
	if !item.IsObject() {
		return Record{}, false
	}
	var text string
	for _, k := range memoryTextKeys {
		if s := nonEmptyString(item.Get(k)); s != "" {
			text = s
			break
		}
	}
	if text == "" {
		return Record{}, false
	}
	extra := make(map[string]any)
	item.ForEach(func(key, val gjson.Result) bool {
		switch key.Str {
		case "content", "memory", "text":
		default:
			extra[key.Str] = val.Value()
		}
		return true
	})
	return Record{Memory: text, Extra: extra}, true
}

func nonEmptyString(v gjson.Result) string {
	if v.Type != gjson.String {
		return ""
	}
	return strings.TrimSpace(v.Str)
}
