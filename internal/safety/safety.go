// Package safety validates generated Manim scripts before they are sent for
// execution. It parses the Python source with Tree-sitter and rejects scripts
// that import or call anything outside the rendering sandbox.
package safety

import (
	"context"
	"fmt"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"animagen/internal/logging"
)

// UnsafeCodeError reports a script that must not be executed. The correction
// loop treats it like any failed attempt: the violation text goes back to the
// fix pass so the model can rewrite the script without the blocked construct.
type UnsafeCodeError struct {
	Reason string
}

func (e *UnsafeCodeError) Error() string {
	return "unsafe generated code: " + e.Reason
}

// dangerousModules are Python modules whose import is blocked outright.
var dangerousModules = map[string]bool{
	"os":              true,
	"sys":             true,
	"subprocess":      true,
	"shutil":          true,
	"pathlib":         true,
	"socket":          true,
	"requests":        true,
	"urllib":          true,
	"http":            true,
	"ftplib":          true,
	"ctypes":          true,
	"multiprocessing": true,
	"threading":       true,
	"asyncio":         true,
	"importlib":       true,
	"builtins":        true,
}

// blockedCallNames are bare builtins that must never appear as calls.
var blockedCallNames = map[string]bool{
	"exec":       true,
	"eval":       true,
	"compile":    true,
	"open":       true,
	"__import__": true,
	"input":      true,
	"breakpoint": true,
}

// Validator checks Python source for blocked imports and calls.
// Safe for concurrent use; the underlying Tree-sitter parser is not,
// so calls are serialized.
type Validator struct {
	mu     sync.Mutex
	parser *sitter.Parser
}

// NewValidator creates a validator with a Python grammar loaded.
func NewValidator() *Validator {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	return &Validator{parser: parser}
}

// Validate returns an *UnsafeCodeError when code is not valid Python or
// contains a blocked import or call, nil otherwise.
func (v *Validator) Validate(ctx context.Context, code string) error {
	log := logging.Get(logging.CategorySafety)

	v.mu.Lock()
	defer v.mu.Unlock()

	content := []byte(code)
	tree, err := v.parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return &UnsafeCodeError{Reason: "failed to parse generated code: " + err.Error()}
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		line := 1
		if errNode := findErrorNode(root); errNode != nil {
			line = int(errNode.StartPoint().Row) + 1
		}
		err := &UnsafeCodeError{Reason: fmt.Sprintf("generated code is not valid Python (syntax error near line %d)", line)}
		log.Warnf("rejected generated script: %v", err)
		return err
	}

	if err := v.walk(root, content); err != nil {
		log.Warnf("rejected generated script: %v", err)
		return err
	}

	log.Debugf("script passed safety checks (%d bytes)", len(content))
	return nil
}

func (v *Validator) walk(node *sitter.Node, content []byte) error {
	getText := func(n *sitter.Node) string {
		return string(content[n.StartByte():n.EndByte()])
	}

	switch node.Type() {
	case "import_statement":
		// import os, import os.path as p
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			name := importedModule(child, getText)
			if name != "" && dangerousModules[rootModule(name)] {
				return &UnsafeCodeError{Reason: fmt.Sprintf("blocked import %q", rootModule(name))}
			}
		}

	case "import_from_statement":
		// from os.path import join
		if moduleNode := node.ChildByFieldName("module_name"); moduleNode != nil {
			name := rootModule(getText(moduleNode))
			if dangerousModules[name] {
				return &UnsafeCodeError{Reason: fmt.Sprintf("blocked import %q", name)}
			}
		}

	case "call":
		if fn := node.ChildByFieldName("function"); fn != nil {
			switch fn.Type() {
			case "identifier":
				name := getText(fn)
				if blockedCallNames[name] {
					return &UnsafeCodeError{Reason: fmt.Sprintf("blocked call %s()", name)}
				}
			case "attribute":
				root := attributeRoot(fn)
				if root != nil && root.Type() == "identifier" {
					name := getText(root)
					if dangerousModules[name] || name == "__builtins__" {
						return &UnsafeCodeError{Reason: fmt.Sprintf("blocked call through %q", name)}
					}
				}
			}
		}
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		if err := v.walk(node.Child(i), content); err != nil {
			return err
		}
	}
	return nil
}

// findErrorNode locates the first ERROR or missing node for line reporting.
func findErrorNode(node *sitter.Node) *sitter.Node {
	if node.Type() == "ERROR" || node.IsMissing() {
		return node
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if found := findErrorNode(node.Child(i)); found != nil {
			return found
		}
	}
	return nil
}

// importedModule resolves the module name from an import_statement child,
// unwrapping "as" aliases.
func importedModule(node *sitter.Node, getText func(*sitter.Node) string) string {
	switch node.Type() {
	case "dotted_name":
		return getText(node)
	case "aliased_import":
		if name := node.ChildByFieldName("name"); name != nil {
			return getText(name)
		}
	}
	return ""
}

// attributeRoot follows an attribute chain (a.b.c()) back to its base object.
func attributeRoot(node *sitter.Node) *sitter.Node {
	current := node
	for current != nil && current.Type() == "attribute" {
		current = current.ChildByFieldName("object")
	}
	return current
}

func rootModule(name string) string {
	if idx := strings.IndexByte(name, '.'); idx >= 0 {
		return name[:idx]
	}
	return name
}
