package pubsub

import (
	"sort"
	"strings"
)

// Transform reshapes the decoded JSON value of a pulled message before it
// is unmarshalled into the caller's type. Implementations must be pure and
// synchronous: no I/O, no shared mutable state, so that concurrent pulls
// need no coordination.
//
// The value is the result of unmarshalling the payload into any: objects
// are map[string]any, arrays []any, numbers float64.
type Transform interface {
	Apply(envelope *ReceivedEnvelope, value any) (any, error)
}

// TransformFunc adapts a plain function to the Transform interface, for
// callers that prefer passing a closure over defining a type.
type TransformFunc func(envelope *ReceivedEnvelope, value any) (any, error)

func (f TransformFunc) Apply(envelope *ReceivedEnvelope, value any) (any, error) {
	return f(envelope, value)
}

// Identity returns the value untouched. Use it when the wire payload
// already matches the target type.
type Identity struct{}

func (Identity) Apply(_ *ReceivedEnvelope, value any) (any, error) {
	return value, nil
}

// InsertAttribute copies one message attribute into the payload object
// under the attribute's own key. This recovers a discriminant the publisher
// put in attributes instead of the body, so a tagged-union unmarshaller
// downstream can dispatch on it.
//
// The payload must be a JSON object and the attribute must be present;
// otherwise the transform fails with UnexpectedValueError or
// MissingAttributeError respectively.
type InsertAttribute struct {
	Key string
}

func (t InsertAttribute) Apply(envelope *ReceivedEnvelope, value any) (any, error) {
	attribute, ok := envelope.Message.Attributes[t.Key]
	if !ok {
		return nil, &MissingAttributeError{Key: t.Key}
	}
	object, ok := value.(map[string]any)
	if !ok {
		return nil, &UnexpectedValueError{Value: value}
	}
	object[t.Key] = attribute
	return object, nil
}

// VersionedTypeTag synthesizes externally-tagged union wrappers from
// message attributes, so the publisher does not have to duplicate a type
// discriminant inside the JSON body.
//
// The message's "version" attribute selects the behavior, defaulting to
// "v1" when absent:
//
//   - "v2": the payload already carries its tags inline; pass through.
//   - "v1": every attribute key equal to "type" or of the form
//     "type.<seg>.<seg>..." names a position in the payload (the dotted
//     segments after "type" are object-field accessors; bare "type" is the
//     root). Each resolved position is replaced with
//     {<attribute value>: <original sub-value>}. Positions that do not
//     resolve are skipped silently.
//   - anything else: fails with UnknownVersionError.
//
// Deeper paths are applied before shallower ones so nested tags are spliced
// innermost-out and a shallow rewrite cannot clobber them. The relative
// order of keys with equal depth is not defined.
type VersionedTypeTag struct{}

func (VersionedTypeTag) Apply(envelope *ReceivedEnvelope, value any) (any, error) {
	attributes := envelope.Message.Attributes

	version, ok := attributes["version"]
	if !ok {
		version = "v1"
	}
	switch version {
	case "v2":
		return value, nil
	case "v1":
		// fall through to the tag splicing below
	default:
		return nil, &UnknownVersionError{Version: version}
	}

	type typeKey struct {
		key  string
		path []string
	}
	var keys []typeKey
	for key := range attributes {
		switch {
		case key == "type":
			keys = append(keys, typeKey{key: key})
		case strings.HasPrefix(key, "type."):
			keys = append(keys, typeKey{key: key, path: strings.Split(key, ".")[1:]})
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		return len(keys[i].path) > len(keys[j].path)
	})

	for _, tk := range keys {
		tag := attributes[tk.key]
		if len(tk.path) == 0 {
			value = map[string]any{tag: value}
			continue
		}
		parent, leaf, ok := resolvePath(value, tk.path)
		if !ok {
			continue
		}
		parent[leaf] = map[string]any{tag: parent[leaf]}
	}
	return value, nil
}

// resolvePath walks the payload along object-field accessors and returns
// the object owning the final segment. A missing intermediate key or a
// non-object on the way means the path does not resolve.
func resolvePath(value any, path []string) (parent map[string]any, leaf string, ok bool) {
	current := value
	for _, segment := range path[:len(path)-1] {
		object, isObject := current.(map[string]any)
		if !isObject {
			return nil, "", false
		}
		current, ok = object[segment]
		if !ok {
			return nil, "", false
		}
	}
	object, isObject := current.(map[string]any)
	if !isObject {
		return nil, "", false
	}
	leaf = path[len(path)-1]
	if _, ok = object[leaf]; !ok {
		return nil, "", false
	}
	return object, leaf, true
}
