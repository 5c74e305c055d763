package kernel

import (
	"strings"

	"github.com/krauthaufen/interactive/engine"
	"github.com/krauthaufen/interactive/protocol"
)

// completionKind maps an engine declaration glyph to the completion-item
// kind names notebook hosts understand. Every glyph maps somewhere; unknown
// ones fall back to Text rather than failing the command.
func completionKind(g engine.Glyph) string {
	switch g {
	case engine.GlyphClass, engine.GlyphType, engine.GlyphTypedef, engine.GlyphException:
		return "Class"
	case engine.GlyphConstant:
		return "Constant"
	case engine.GlyphDelegate:
		return "Delegate"
	case engine.GlyphEnum, engine.GlyphUnion:
		return "Enum"
	case engine.GlyphEnumMember:
		return "EnumMember"
	case engine.GlyphEvent:
		return "Event"
	case engine.GlyphField:
		return "Field"
	case engine.GlyphInterface:
		return "Interface"
	case engine.GlyphMethod, engine.GlyphOverridenMethod, engine.GlyphExtensionMethod:
		return "Method"
	case engine.GlyphModule:
		return "Module"
	case engine.GlyphNameSpace:
		return "Namespace"
	case engine.GlyphProperty:
		return "Property"
	case engine.GlyphStruct:
		return "Struct"
	case engine.GlyphVariable:
		return "Variable"
	default:
		return "Text"
	}
}

// completionItem converts one engine declaration. The service may leave the
// filter/sort/insert texts empty; hosts expect them populated, so the
// display text backfills.
func completionItem(d engine.Declaration) protocol.CompletionItem {
	item := protocol.CompletionItem{
		DisplayText:   d.DisplayText,
		Kind:          completionKind(d.Glyph),
		FilterText:    d.FilterText,
		SortText:      d.SortText,
		InsertText:    d.InsertText,
		Documentation: d.Documentation,
	}
	if item.FilterText == "" {
		item.FilterText = d.DisplayText
	}
	if item.SortText == "" {
		item.SortText = d.DisplayText
	}
	if item.InsertText == "" {
		item.InsertText = d.DisplayText
	}
	return item
}

// remapDiagnostics converts engine diagnostics (1-based lines, 0-based
// columns) to host positions (all 0-based), clamping anything negative.
func remapDiagnostics(diags []engine.Diagnostic) []protocol.Diagnostic {
	out := make([]protocol.Diagnostic, 0, len(diags))
	for _, d := range diags {
		out = append(out, remapDiagnostic(d))
	}
	return out
}

func remapDiagnostic(d engine.Diagnostic) protocol.Diagnostic {
	return protocol.Diagnostic{
		Span: protocol.LinePositionSpan{
			Start: protocol.LinePosition{Line: clamp(d.Line - 1), Character: clamp(d.Column)},
			End:   protocol.LinePosition{Line: clamp(d.EndLine - 1), Character: clamp(d.EndColumn)},
		},
		Severity: remapSeverity(d.Severity),
		Code:     d.Code(),
		Message:  d.Message,
	}
}

func remapSeverity(s engine.Severity) protocol.DiagnosticSeverity {
	switch s {
	case engine.SeverityHidden:
		return protocol.SeverityHidden
	case engine.SeverityWarning:
		return protocol.SeverityWarning
	case engine.SeverityError:
		return protocol.SeverityError
	default:
		return protocol.SeverityInfo
	}
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

// failureMessage joins the error-severity diagnostics into the
// CommandFailed message; without any, the engine error speaks for itself.
func failureMessage(diags []protocol.Diagnostic, err error) string {
	messages := make([]string, 0, len(diags))
	for _, d := range diags {
		if d.Severity == protocol.SeverityError {
			messages = append(messages, d.String())
		}
	}
	if len(messages) == 0 {
		return err.Error()
	}
	return strings.Join(messages, "\n")
}

// hoverMarkdown renders a tooltip as the text/markdown payload of
// HoverTextProduced: the signature in a fenced F# block, the documentation
// below it.
func hoverMarkdown(t *engine.Tooltip) string {
	md := "```fsharp\n" + strings.TrimRight(t.Text, "\n") + "\n```"
	if doc := strings.TrimSpace(t.Documentation); doc != "" {
		md += "\n\n" + doc
	}
	return md
}
