package workflow

import (
	"regexp"
	"strings"
)

// outputPrefix marks a node whose artifacts become the tool output.
const outputPrefix = "$output."

// mcpTitle marks the node carrying the tool-level description.
const mcpTitle = "MCP"

// annotationPattern is the parameter grammar:
// $<param>.[~]<field>[!][:<description>]
var annotationPattern = regexp.MustCompile(`^\$(\w+)\.(~)?(\w+)(!)?(?::(.+))?$`)

// identPattern validates the variable token of an output marker.
var identPattern = regexp.MustCompile(`^\w+$`)

// Annotation is one parsed parameter annotation from a node title.
type Annotation struct {
	// Name is the exposed parameter name.
	Name string

	// Field is the node input field the parameter binds to.
	Field string

	// Upload marks the field as an upload carrier (~ prefix): values
	// that are remote references must be staged before binding.
	Upload bool

	// Required marks the parameter as mandatory (! suffix).
	Required bool

	// Description is the optional free-text description after the colon.
	Description string
}

// String re-serializes the annotation into an equivalent title.
func (a Annotation) String() string {
	var b strings.Builder
	b.WriteByte('$')
	b.WriteString(a.Name)
	b.WriteByte('.')
	if a.Upload {
		b.WriteByte('~')
	}
	b.WriteString(a.Field)
	if a.Required {
		b.WriteByte('!')
	}
	if a.Description != "" {
		b.WriteByte(':')
		b.WriteString(a.Description)
	}
	return b.String()
}

// ParseAnnotation parses a parameter annotation from a node title. It
// returns (nil, nil) for titles that are not annotations at all, and a
// *SyntaxError for titles that start with the DSL prefix but violate the
// grammar. Output markers and the MCP title are not parameter annotations.
func ParseAnnotation(title string) (*Annotation, error) {
	title = strings.TrimSpace(title)
	if !strings.HasPrefix(title, "$") {
		return nil, nil
	}
	if strings.HasPrefix(title, outputPrefix) {
		return nil, nil
	}
	m := annotationPattern.FindStringSubmatch(title)
	if m == nil {
		return nil, &SyntaxError{Title: title}
	}
	return &Annotation{
		Name:        m[1],
		Upload:      m[2] == "~",
		Field:       m[3],
		Required:    m[4] == "!",
		Description: strings.TrimSpace(m[5]),
	}, nil
}

// ParseOutputMarker parses a $output.<var> title. It returns ("", nil) for
// titles that are not output markers, and a *SyntaxError when the marker
// prefix is present but the variable token is missing or malformed.
func ParseOutputMarker(title string) (string, error) {
	title = strings.TrimSpace(title)
	if !strings.HasPrefix(title, outputPrefix) {
		return "", nil
	}
	v := title[len(outputPrefix):]
	if !identPattern.MatchString(v) {
		return "", &SyntaxError{Title: title}
	}
	return v, nil
}

// descriptionFields are the MCP node inputs checked (case-insensitively,
// in order) for the tool description text.
var descriptionFields = []string{"value", "text", "string"}

// mcpDescription extracts the tool description carried by an MCP node.
// The first matching text-valued field wins.
func mcpDescription(node *Node) string {
	lowered := make(map[string]any, len(node.Inputs))
	for k, v := range node.Inputs {
		lowered[strings.ToLower(k)] = v
	}
	for _, field := range descriptionFields {
		v, ok := lowered[field]
		if !ok {
			continue
		}
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
