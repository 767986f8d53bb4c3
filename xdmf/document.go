package xdmf

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strconv"

	"github.com/beevik/etree"
)

const xincludeNS = "http://www.w3.org/2001/XInclude"

// newDocument returns an empty Xdmf 3 index with a single Domain
func newDocument() *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0"`)
	doc.CreateDirective(`DOCTYPE Xdmf SYSTEM "Xdmf.dtd" []`)
	root := doc.CreateElement("Xdmf")
	root.CreateAttr("Version", "3.0")
	root.CreateAttr("xmlns:xi", xincludeNS)
	root.CreateElement("Domain")
	return doc
}

func domainOf(doc *etree.Document) (*etree.Element, error) {
	d := doc.FindElement("/Xdmf/Domain")
	if d == nil {
		return nil, fmt.Errorf("%w: no Xdmf/Domain element", ErrFormat)
	}
	return d, nil
}

// newGrid appends a Uniform grid
func newGrid(parent *etree.Element, name string) *etree.Element {
	g := parent.CreateElement("Grid")
	g.CreateAttr("Name", name)
	g.CreateAttr("GridType", "Uniform")
	return g
}

// temporalCollection returns the named temporal collection under domain,
// creating it when absent.
func temporalCollection(domain *etree.Element, name string) *etree.Element {
	if g := childGrid(domain, name); g != nil {
		return g
	}
	g := domain.CreateElement("Grid")
	g.CreateAttr("Name", name)
	g.CreateAttr("GridType", "Collection")
	g.CreateAttr("CollectionType", "Temporal")
	return g
}

func childGrid(parent *etree.Element, name string) *etree.Element {
	for _, g := range parent.SelectElements("Grid") {
		if g.SelectAttrValue("Name", "") == name {
			return g
		}
	}
	return nil
}

func isUniform(g *etree.Element) bool {
	return g.SelectAttrValue("GridType", "Uniform") == "Uniform"
}

// gridTime returns the Time Value of a grid
func gridTime(g *etree.Element) (float64, bool) {
	t := g.SelectElement("Time")
	if t == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(t.SelectAttrValue("Value", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func formatTime(t float64) string { return strconv.FormatFloat(t, 'g', -1, 64) }

// grids returns every grid below the domain in document order
func grids(domain *etree.Element) []*etree.Element {
	var out []*etree.Element
	var walk func(e *etree.Element)
	walk = func(e *etree.Element) {
		for _, g := range e.SelectElements("Grid") {
			out = append(out, g)
			walk(g)
		}
	}
	walk(domain)
	return out
}

// firstMeshGrid returns the first grid, depth first, that carries a Topology
func firstMeshGrid(domain *etree.Element) *etree.Element {
	for _, g := range grids(domain) {
		if g.SelectElement("Topology") != nil {
			return g
		}
	}
	return nil
}

// findAttribute returns the grid and Attribute named name. With last set
// the final match in document order wins, otherwise the first. An empty
// name matches any attribute.
func findAttribute(domain *etree.Element, name string, last bool,
	keep func(g *etree.Element) bool) (*etree.Element, *etree.Element) {

	var grid, attr *etree.Element
	for _, g := range grids(domain) {
		if keep != nil && !keep(g) {
			continue
		}
		for _, a := range g.SelectElements("Attribute") {
			if name != "" && a.SelectAttrValue("Name", "") != name {
				continue
			}
			grid, attr = g, a
			if !last {
				return grid, attr
			}
			break
		}
	}
	return grid, attr
}

// loadDocument reads an index file and resolves its xi:include references
func loadDocument(filename string) (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromFile(filename); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("%w: %s has no root element", ErrFormat, filename)
	}
	if err := resolveIncludes(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

var gridStep = regexp.MustCompile(`Grid\[@Name="([^"]*)"\]`)

// includePointer is the xpointer written for a time step that reuses the
// mesh of an earlier step
func includePointer(collection, grid string) string {
	return fmt.Sprintf(`xpointer(//Grid[@Name="%s"]/Grid[@Name="%s"]/*[self::Topology or self::Geometry])`,
		collection, grid)
}

// resolveIncludes replaces every xi:include with copies of the Topology
// and Geometry of the grid its xpointer names. Only the grid path form
// this package writes is understood.
func resolveIncludes(doc *etree.Document) error {
	var includes []*etree.Element
	var walk func(e *etree.Element)
	walk = func(e *etree.Element) {
		for _, ch := range e.ChildElements() {
			if ch.Space == "xi" && ch.Tag == "include" {
				includes = append(includes, ch)
				continue
			}
			walk(ch)
		}
	}
	walk(doc.Root())
	if len(includes) == 0 {
		return nil
	}
	domain, err := domainOf(doc)
	if err != nil {
		return err
	}

	for _, inc := range includes {
		ptr := inc.SelectAttrValue("xpointer", "")
		steps := gridStep.FindAllStringSubmatch(ptr, -1)
		if len(steps) == 0 {
			return fmt.Errorf("%w: unsupported xpointer %q", ErrFormat, ptr)
		}
		var target *etree.Element
		for _, g := range grids(domain) {
			if g.SelectAttrValue("Name", "") == steps[0][1] {
				target = g
				break
			}
		}
		for _, s := range steps[1:] {
			if target == nil {
				break
			}
			target = childGrid(target, s[1])
		}
		if target == nil {
			return fmt.Errorf("%w: xpointer %q names no grid", ErrFormat, ptr)
		}

		parent := inc.Parent()
		at := inc.Index()
		parent.RemoveChildAt(at)
		for _, tag := range []string{"Topology", "Geometry"} {
			if src := target.SelectElement(tag); src != nil {
				parent.InsertChildAt(at, src.Copy())
				at++
			}
		}
	}
	return nil
}
