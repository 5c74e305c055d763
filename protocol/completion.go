package protocol

// CompletionItem is a single completion proposal. DisplayText is what the
// host shows, InsertText is what gets typed; Kind uses the host vocabulary
// (Method, Property, Class, ...) produced by the kernel's glyph mapping.
type CompletionItem struct {
	DisplayText   string `json:"displayText"`
	Kind          string `json:"kind"`
	FilterText    string `json:"filterText,omitempty"`
	SortText      string `json:"sortText,omitempty"`
	InsertText    string `json:"insertText,omitempty"`
	Documentation string `json:"documentation,omitempty"`
}

// FormattedValue is a mime-typed rendering of a value.
type FormattedValue struct {
	MimeType string `json:"mimeType"`
	Value    string `json:"value"`
}

// PlainText wraps a string as a text/plain FormattedValue.
func PlainText(v string) FormattedValue {
	return FormattedValue{MimeType: "text/plain", Value: v}
}

// Markdown wraps a string as a text/markdown FormattedValue.
func Markdown(v string) FormattedValue {
	return FormattedValue{MimeType: "text/markdown", Value: v}
}

// ValueInfo describes one value bound in the evaluation session, as
// reported in response to RequestValueInfos.
type ValueInfo struct {
	Name           string         `json:"name"`
	FormattedValue FormattedValue `json:"formattedValue"`
	TypeName       string         `json:"typeName,omitempty"`
}

// PackageReference identifies a package requested from or resolved by the
// restore machinery.
type PackageReference struct {
	Name    string `json:"packageName"`
	Version string `json:"packageVersion,omitempty"`
}

// String renders the reference as "name, version" (host display form).
func (r PackageReference) String() string {
	if r.Version == "" {
		return r.Name
	}
	return r.Name + ", " + r.Version
}
