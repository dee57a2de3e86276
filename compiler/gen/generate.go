package gen

import (
	"context"
	"encoding/hex"
	"go/token"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/dave/jennifer/jen"
	"lukechampine.com/blake3"

	"github.com/syssam/relgraph"
	"github.com/syssam/relgraph/graph"
	"github.com/syssam/relgraph/schema/field"
	"github.com/syssam/relgraph/session"
)

const (
	sessionPkg = "github.com/syssam/relgraph/session"
	storePkg   = "github.com/syssam/relgraph/store"
)

// Generated file names.
const (
	SessionFile = "session.go"
	EagerFile   = "eager.go"
	DocsFile    = "operations.md"
)

// Generator emits the source-text form of an operation table.
type Generator struct {
	table   *session.Table
	outDir  string
	pkg     string
	workers int
	docs    bool
	logger  *slog.Logger
}

// NewGenerator creates a generator writing into outDir. The package name
// defaults to the base name of outDir.
//
//	tbl, _ := session.NewSynthesizer(g).Synthesize()
//	err := gen.NewGenerator(tbl, "./db").WithDocs(true).Generate(ctx)
func NewGenerator(t *session.Table, outDir string) *Generator {
	return &Generator{
		table:   t,
		outDir:  outDir,
		pkg:     filepath.Base(outDir),
		workers: runtime.GOMAXPROCS(0),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithWorkers sets the number of parallel writers.
func (g *Generator) WithWorkers(n int) *Generator {
	if n > 0 {
		g.workers = n
	}
	return g
}

// WithPackage sets the output package name.
func (g *Generator) WithPackage(pkg string) *Generator {
	if pkg != "" {
		g.pkg = pkg
	}
	return g
}

// WithDocs enables the markdown operation reference.
func (g *Generator) WithDocs(on bool) *Generator {
	g.docs = on
	return g
}

// WithLogger sets the logger of the generator.
func (g *Generator) WithLogger(l *slog.Logger) *Generator {
	if l != nil {
		g.logger = l
	}
	return g
}

// Generate renders, formats and writes the generated files.
func (g *Generator) Generate(ctx context.Context) error {
	if g.table == nil {
		return &ConfigError{Setting: "Table", Reason: "no operation table"}
	}
	if g.outDir == "" {
		return &ConfigError{Setting: "Target", Reason: "missing target directory"}
	}
	if !token.IsIdentifier(g.pkg) {
		return &ConfigError{Setting: "Package", Value: g.pkg, Reason: "not a valid package name"}
	}
	files := []fileTask{
		{name: SessionFile, code: g.sessionFile()},
		{name: EagerFile, code: g.eagerFile()},
	}
	if g.docs {
		files = append(files, fileTask{name: DocsFile, raw: g.docsFile()})
	}
	w := newWriter(g.outDir, g.workers)
	if err := w.writeAll(ctx, files); err != nil {
		return err
	}
	g.logger.InfoContext(ctx, "code generated", "dir", g.outDir, "operations", g.table.Len(), "files", len(files))
	return nil
}

// Fingerprint returns the blake3 hash of the operation signatures and eager
// flags. Generated code carries it so stale output can be detected.
func (g *Generator) Fingerprint() string {
	h := blake3.New(32, nil)
	io.WriteString(h, g.pkg+"\n")
	for _, op := range g.table.Operations() {
		io.WriteString(h, op.Signature())
		for _, flag := range op.Flags {
			io.WriteString(h, " "+flag)
		}
		io.WriteString(h, "\n")
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (g *Generator) newFile() *jen.File {
	f := jen.NewFile(g.pkg)
	f.HeaderComment("Code generated by relgraph. DO NOT EDIT.")
	f.ImportName(sessionPkg, "session")
	f.ImportName(storePkg, "store")
	return f
}

// sessionFile renders the typed session wrapper: one method per operation,
// each delegating to session.Call with the operation name.
func (g *Generator) sessionFile() *jen.File {
	f := g.newFile()
	f.Comment("Fingerprint identifies the operation table this file was generated from.")
	f.Const().Id("Fingerprint").Op("=").Lit(g.Fingerprint())

	f.Comment("Session is a typed view of a relgraph session.")
	f.Type().Id("Session").Struct(jen.Op("*").Qual(sessionPkg, "Session"))

	f.Comment("New wraps a session.")
	f.Func().Id("New").Params(jen.Id("sess").Op("*").Qual(sessionPkg, "Session")).Op("*").Id("Session").Block(
		jen.Return(jen.Op("&").Id("Session").Values(jen.Id("Session").Op(":").Id("sess"))),
	)
	for _, op := range g.table.Operations() {
		f.Line()
		g.method(f, op)
	}
	return f
}

func (g *Generator) method(f *jen.File, op *session.Operation) {
	names := paramNames(op)
	params := []jen.Code{jen.Id("ctx").Qual("context", "Context")}
	args := []jen.Code{jen.Id("ctx"), jen.Lit(op.Name)}
	for i, p := range op.Params {
		params = append(params, paramDecl(names[i], p))
		args = append(args, jen.Id(names[i]))
	}
	call := jen.Id("s").Dot("Call").Call(args...)
	var (
		results jen.Code
		body    []jen.Code
	)
	switch op.Returns() {
	case session.ReturnNone:
		results = jen.Error()
		body = []jen.Code{
			jen.List(jen.Id("_"), jen.Err()).Op(":=").Add(call),
			jen.Return(jen.Err()),
		}
	default:
		typ := returnType(op.Returns())
		results = jen.Parens(jen.List(typ, jen.Error()))
		body = []jen.Code{jen.Return(jen.Qual(sessionPkg, "As").Index(typ).Call(call))}
	}
	f.Comment(methodName(op.Name) + " " + Describe(op) + ".")
	f.Func().Params(jen.Id("s").Op("*").Id("Session")).Id(methodName(op.Name)).Params(params...).Add(results).Block(body...)
}

// eagerFile renders one constant per eager-load flag of every entity.
func (g *Generator) eagerFile() *jen.File {
	f := g.newFile()
	for _, op := range g.table.Operations() {
		if op.Verb != relgraph.OpRetrieve || len(op.Flags) == 0 {
			continue
		}
		f.Commentf("Eager-load options of %s.", op.Entity)
		f.Const().DefsFunc(func(d *jen.Group) {
			for _, flag := range op.Flags {
				d.Id(flagConst(op.Entity, flag)).Op("=").Lit(flag)
			}
		})
	}
	return f
}

func returnType(r session.Return) jen.Code {
	switch r {
	case session.ReturnRow:
		return jen.Qual(storePkg, "Row")
	case session.ReturnRows:
		return jen.Index().Qual(storePkg, "Row")
	case session.ReturnBool:
		return jen.Bool()
	case session.ReturnCount:
		return jen.Int64()
	}
	return jen.Id("any")
}

func paramDecl(name string, p session.Param) jen.Code {
	switch p.Kind {
	case session.ParamData:
		return jen.Id(name).Map(jen.String()).Id("any")
	case session.ParamFilter:
		return jen.Id(name).Qual(storePkg, "Filter")
	case session.ParamOptions:
		return jen.Id(name).Qual(sessionPkg, "Options")
	case session.ParamTargets:
		return jen.Id(name).Op("...").Add(goType(p.Type))
	}
	return jen.Id(name).Add(goType(p.Type))
}

// goType maps an attribute type to the Go type of generated parameters.
func goType(t field.Type) jen.Code {
	switch t {
	case field.TypeString, field.TypeText, field.TypeUUID:
		return jen.String()
	case field.TypeBool:
		return jen.Bool()
	case field.TypeInt:
		return jen.Int64()
	case field.TypeFloat:
		return jen.Float64()
	case field.TypeTime:
		return jen.Qual("time", "Time")
	}
	return jen.Id("any")
}

// paramNames returns Go parameter names for the operation parameters:
// initialisms upper-cased, keywords and names taken by the receiver or the
// context suffixed.
func paramNames(op *session.Operation) []string {
	names := make([]string, len(op.Params))
	used := map[string]bool{"s": true, "ctx": true}
	for i, p := range op.Params {
		name := goName(p.Name)
		for used[name] || token.IsKeyword(name) || isPredeclared(name) {
			name += "Arg"
		}
		used[name] = true
		names[i] = name
	}
	return names
}

func goName(name string) string {
	switch {
	case name == "id":
		return "id"
	case strings.HasSuffix(name, "Ids"):
		return strings.TrimSuffix(name, "Ids") + "IDs"
	case strings.HasSuffix(name, "Id"):
		return strings.TrimSuffix(name, "Id") + "ID"
	}
	return name
}

func isPredeclared(name string) bool {
	switch name {
	case "any", "bool", "string", "int", "int64", "float64", "error", "len", "cap", "new", "make",
		"append", "copy", "delete", "nil", "true", "false", "iota", "byte", "rune", "time":
		return true
	}
	return false
}

func methodName(op string) string {
	return strings.ToUpper(op[:1]) + op[1:]
}

func flagConst(entity, flag string) string {
	return "Eager" + graph.Pascal(entity) + strings.ToUpper(flag[:1]) + flag[1:]
}
