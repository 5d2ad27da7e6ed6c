package main

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"go/ast"
	"go/format"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"text/template"

	"go.uber.org/zap"
	"golang.org/x/tools/go/packages"
)

const (
	generatedFileName = "packify_gen.go"
	generatedHeader   = "// Code generated by packifygen; DO NOT EDIT."
)

type packageInfo struct {
	Dir     string
	Name    string
	Structs []structInfo
}

type structInfo struct {
	Name   string
	TypeID string
	Fields []fieldInfo
}

type fieldInfo struct {
	Name      string
	Type      string
	Key       string
	Ident     string
	IsPointer bool
	// IsExt marks a by-value field whose type is generated in the same
	// package. Its address is packed so the pointer methods apply.
	IsExt bool
}

//go:embed templates/packify_gen.gotemplate
var packifyGenTemplate string

type generator struct {
	log *zap.Logger
}

func (g *generator) collectPackageInfos(root string) ([]*packageInfo, error) {
	dirs := make(map[string]struct{})
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && shouldSkipDir(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".go") || strings.HasSuffix(d.Name(), "_test.go") {
			return nil
		}
		dirs[filepath.Dir(path)] = struct{}{}
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	var infos []*packageInfo
	for dir := range dirs {
		pkgInfos, err := g.parsePackageDir(dir)
		if err != nil {
			return nil, err
		}
		infos = append(infos, pkgInfos...)
	}

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Dir == infos[j].Dir {
			return infos[i].Name < infos[j].Name
		}
		return infos[i].Dir < infos[j].Dir
	})
	return infos, nil
}

func (g *generator) parsePackageDir(dir string) ([]*packageInfo, error) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedSyntax | packages.NeedFiles,
		Dir:  dir,
	}
	pkgs, err := packages.Load(cfg, ".")
	if err != nil {
		return nil, err
	}

	var infos []*packageInfo
	for _, pkg := range pkgs {
		if len(pkg.Errors) > 0 {
			if isSkippablePackageErrors(pkg.Errors) {
				g.log.Debug("skipping package with no buildable files", zap.String("dir", dir))
				continue
			}
			return nil, fmt.Errorf("package load error in %s: %v", dir, pkg.Errors[0])
		}
		if pkg.Name == "" || strings.HasSuffix(pkg.Name, "_test") {
			continue
		}
		info := &packageInfo{Dir: dir, Name: pkg.Name}
		declared := make(map[string]struct{})
		var candidates []structInfo
		for _, file := range pkg.Syntax {
			if pkg.Fset != nil {
				base := filepath.Base(pkg.Fset.Position(file.Pos()).Filename)
				if strings.HasSuffix(base, "_test.go") || base == generatedFileName {
					continue
				}
			}
			collectDeclared(file, declared)
			ast.Inspect(file, func(n ast.Node) bool {
				ts, ok := n.(*ast.TypeSpec)
				if !ok {
					return true
				}
				st, ok := ts.Type.(*ast.StructType)
				if !ok {
					return false
				}
				if ts.TypeParams != nil && len(ts.TypeParams.List) > 0 {
					g.log.Warn("skipping generic struct", zap.String("type", ts.Name.Name), zap.String("dir", dir))
					return false
				}
				fields, err := collectTaggedFields(pkg.Fset, st)
				if err != nil {
					g.log.Warn("skipping struct", zap.String("type", ts.Name.Name), zap.String("dir", dir), zap.Error(err))
					return false
				}
				fields = g.filterReservedFieldNames(ts.Name.Name, fields, dir)
				if len(fields) == 0 {
					return false
				}
				candidates = append(candidates, structInfo{
					Name:   ts.Name.Name,
					TypeID: pkg.Name + "." + ts.Name.Name,
					Fields: fields,
				})
				return false
			})
		}

		if _, ok := declared["RegisterPackifyTypes"]; ok && len(candidates) > 0 {
			g.log.Warn("skipping package", zap.String("dir", dir), zap.String("existing", "RegisterPackifyTypes"))
			candidates = nil
		}
		for _, candidate := range candidates {
			if name, clash := clashingName(candidate.Name, declared); clash {
				g.log.Warn("skipping struct", zap.String("type", candidate.Name), zap.String("dir", dir), zap.String("existing", name))
				continue
			}
			info.Structs = append(info.Structs, candidate)
		}

		sort.Slice(info.Structs, func(i, j int) bool {
			return info.Structs[i].Name < info.Structs[j].Name
		})
		applyExtTypes(info)
		infos = append(infos, info)
	}

	return infos, nil
}

// collectDeclared records the top-level type, func and var names of file,
// skipping methods.
func collectDeclared(file *ast.File, declared map[string]struct{}) {
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if d.Recv == nil {
				declared[d.Name.Name] = struct{}{}
			}
		case *ast.GenDecl:
			for _, spec := range d.Specs {
				switch s := spec.(type) {
				case *ast.TypeSpec:
					declared[s.Name.Name] = struct{}{}
				case *ast.ValueSpec:
					for _, n := range s.Names {
						declared[n.Name] = struct{}{}
					}
				}
			}
		}
	}
}

func clashingName(structName string, declared map[string]struct{}) (string, bool) {
	for _, name := range []string{"Unpack" + structName, structName + "Unpacker"} {
		if _, ok := declared[name]; ok {
			return name, true
		}
	}
	return "", false
}

func isSkippablePackageErrors(errs []packages.Error) bool {
	if len(errs) == 0 {
		return false
	}
	for _, err := range errs {
		msg := strings.ToLower(err.Msg)
		if strings.Contains(msg, "build constraints exclude all go files") {
			continue
		}
		if strings.Contains(msg, "no go files") {
			continue
		}
		return false
	}
	return true
}

func collectTaggedFields(fset *token.FileSet, st *ast.StructType) ([]fieldInfo, error) {
	var fields []fieldInfo
	seen := make(map[string]struct{})
	for _, field := range st.Fields.List {
		if field.Tag == nil || len(field.Names) == 0 {
			continue
		}
		tagValue, err := strconv.Unquote(field.Tag.Value)
		if err != nil {
			continue
		}
		packTag, ok := reflect.StructTag(tagValue).Lookup("packify")
		if !ok {
			continue
		}
		key := strings.Split(packTag, ",")[0]
		if key == "-" {
			continue
		}
		typ, err := formatNode(fset, field.Type)
		if err != nil {
			return nil, err
		}
		ident, isPtr := fieldIdent(field.Type)
		for _, name := range field.Names {
			if !name.IsExported() {
				continue
			}
			k := key
			if k == "" {
				k = name.Name
			}
			if _, dup := seen[k]; dup {
				return nil, fmt.Errorf("duplicate packify key %q", k)
			}
			seen[k] = struct{}{}
			fields = append(fields, fieldInfo{
				Name:      name.Name,
				Type:      typ,
				Key:       k,
				Ident:     ident,
				IsPointer: isPtr,
			})
		}
	}
	return fields, nil
}

func (g *generator) filterReservedFieldNames(structName string, fields []fieldInfo, dir string) []fieldInfo {
	reserved := map[string]struct{}{
		"TypeName": {},
		"Pack":     {},
	}
	var out []fieldInfo
	for _, field := range fields {
		if _, ok := reserved[field.Name]; ok {
			g.log.Warn("skipping field with reserved method name",
				zap.String("field", structName+"."+field.Name), zap.String("dir", dir))
			continue
		}
		out = append(out, field)
	}
	return out
}

func applyExtTypes(info *packageInfo) {
	available := make(map[string]struct{}, len(info.Structs))
	for _, st := range info.Structs {
		available[st.Name] = struct{}{}
	}
	for i := range info.Structs {
		for j := range info.Structs[i].Fields {
			field := &info.Structs[i].Fields[j]
			if field.Ident == "" || field.IsPointer {
				continue
			}
			if _, ok := available[field.Ident]; ok {
				field.IsExt = true
			}
		}
	}
}

func fieldIdent(expr ast.Expr) (string, bool) {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name, false
	case *ast.StarExpr:
		if ident, ok := t.X.(*ast.Ident); ok {
			return ident.Name, true
		}
	}
	return "", false
}

func formatNode(fset *token.FileSet, node ast.Node) (string, error) {
	var buf bytes.Buffer
	if fset == nil {
		fset = token.NewFileSet()
	}
	if err := format.Node(&buf, fset, node); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func shouldSkipDir(name string) bool {
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
		return true
	}
	switch name {
	case "vendor", "node_modules", "testdata":
		return true
	default:
		return false
	}
}

type templateData struct {
	PackageName string
	Structs     []structInfo
}

func generatePackage(info *packageInfo) ([]byte, error) {
	var buf bytes.Buffer
	tmpl, err := template.New("packify_gen").Parse(packifyGenTemplate)
	if err != nil {
		return nil, err
	}
	if err := tmpl.Execute(&buf, templateData{
		PackageName: info.Name,
		Structs:     info.Structs,
	}); err != nil {
		return nil, err
	}

	formatted, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, err
	}
	return formatted, nil
}

func writeFileIfChanged(filePath string, data []byte) (bool, error) {
	existing, err := os.ReadFile(filePath)
	if err == nil && bytes.Equal(existing, data) {
		return false, nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, err
	}
	if err := os.WriteFile(filePath, data, 0o644); err != nil {
		return false, err
	}
	return true, nil
}

func removeGeneratedFile(dir string) (bool, error) {
	filePath := filepath.Join(dir, generatedFileName)
	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if !bytes.HasPrefix(data, []byte(generatedHeader)) {
		return false, nil
	}
	if err := os.Remove(filePath); err != nil {
		return false, err
	}
	return true, nil
}
