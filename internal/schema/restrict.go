package schema

import "fmt"

// allowedKeywords is the restricted JSON Schema subset MCP tool/prompt
// schemas may use. Anything outside this set is rejected before compiling,
// so an author never relies on a keyword the library happens to support but
// the protocol doesn't promise across implementations.
var allowedKeywords = map[string]struct{}{
	"type": {}, "properties": {}, "required": {}, "items": {},
	"enum": {}, "const": {}, "description": {}, "title": {},
	"additionalProperties": {}, "minLength": {}, "maxLength": {},
	"minimum": {}, "maximum": {}, "exclusiveMinimum": {}, "exclusiveMaximum": {},
	"minItems": {}, "maxItems": {}, "default": {}, "$schema": {}, "$id": {},
	"anyOf": {}, "oneOf": {}, "format": {},
}

// CheckRestrictedSubset walks doc (and nested object/array schema values)
// and reports the first keyword outside allowedKeywords it finds.
func CheckRestrictedSubset(doc map[string]any) error {
	return checkNode(doc, "")
}

func checkNode(node any, path string) error {
	obj, ok := node.(map[string]any)
	if !ok {
		return nil
	}
	for key, val := range obj {
		if _, ok := allowedKeywords[key]; !ok {
			return fmt.Errorf("schema: keyword %q at %s is outside the supported subset", key, path+"/"+key)
		}
		switch key {
		case "properties":
			props, ok := val.(map[string]any)
			if !ok {
				continue
			}
			for name, propSchema := range props {
				if err := checkNode(propSchema, path+"/properties/"+name); err != nil {
					return err
				}
			}
		case "items":
			if err := checkNode(val, path+"/items"); err != nil {
				return err
			}
		case "anyOf", "oneOf":
			list, ok := val.([]any)
			if !ok {
				continue
			}
			for i, sub := range list {
				if err := checkNode(sub, fmt.Sprintf("%s/%s/%d", path, key, i)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
