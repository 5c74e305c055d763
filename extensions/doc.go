// Package extensions discovers kernel extensions on disk. An extension is a
// directory carrying an extension.yaml manifest and an entry script; the
// kernel evaluates the script through its normal submission path, so an
// extension can register formatters, load assemblies, or bind helper values
// exactly like user code would.
//
// Discovery is read-only and deterministic: manifests that fail to parse or
// validate are skipped with a warning, allow-patterns filter by extension
// name, and results come back name-sorted. A Watcher built on fsnotify
// reports extension directories that appear after the initial scan.
package extensions
