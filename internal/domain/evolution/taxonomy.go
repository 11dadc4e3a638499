package evolution

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrMalformedTaxonomy is a configuration error: a group or subgroup does not
// have one of the supported shapes.
var ErrMalformedTaxonomy = errors.New("malformed taxonomy")

// GroupKind tags the shape of a taxonomy group.
type GroupKind int

const (
	// GroupFlat holds attribute names directly.
	GroupFlat GroupKind = iota + 1
	// GroupNested holds named subgroups of attribute names.
	GroupNested
)

func (k GroupKind) String() string {
	switch k {
	case GroupFlat:
		return "flat"
	case GroupNested:
		return "nested"
	default:
		return fmt.Sprintf("GroupKind(%d)", int(k))
	}
}

// Subgroup is a named, ordered list of attribute names.
type Subgroup struct {
	Name       string   `json:"name"`
	Attributes []string `json:"attributes"`
}

// Group is a top-level taxonomy entry. Exactly one of Attributes (flat) or
// Subgroups (nested) is meaningful, selected by Kind.
type Group struct {
	Name       string     `json:"name"`
	Kind       GroupKind  `json:"-"`
	Attributes []string   `json:"attributes,omitempty"`
	Subgroups  []Subgroup `json:"subgroups,omitempty"`
}

func (g Group) MarshalJSON() ([]byte, error) {
	type alias Group
	return json.Marshal(struct {
		alias
		Kind string `json:"kind"`
	}{alias: alias(g), Kind: g.Kind.String()})
}

// Flat builds a one-level group.
func Flat(name string, attributes ...string) Group {
	return Group{Name: name, Kind: GroupFlat, Attributes: attributes}
}

// Nested builds a two-level group.
func Nested(name string, subgroups ...Subgroup) Group {
	return Group{Name: name, Kind: GroupNested, Subgroups: subgroups}
}

// Sub builds a subgroup.
func Sub(name string, attributes ...string) Subgroup {
	return Subgroup{Name: name, Attributes: attributes}
}

// Taxonomy is the ordered classification of attributes used to lay out a
// comparison report.
type Taxonomy struct {
	Groups []Group `json:"groups"`
}

// Validate checks every group has a known shape and a name.
func (t Taxonomy) Validate() error {
	for i, g := range t.Groups {
		if g.Name == "" {
			return fmt.Errorf("%w: group %d has no name", ErrMalformedTaxonomy, i)
		}
		switch g.Kind {
		case GroupFlat:
			if len(g.Subgroups) > 0 {
				return fmt.Errorf("%w: flat group %q has subgroups", ErrMalformedTaxonomy, g.Name)
			}
		case GroupNested:
			if len(g.Attributes) > 0 {
				return fmt.Errorf("%w: nested group %q has direct attributes", ErrMalformedTaxonomy, g.Name)
			}
			for j, s := range g.Subgroups {
				if s.Name == "" {
					return fmt.Errorf("%w: subgroup %d of %q has no name", ErrMalformedTaxonomy, j, g.Name)
				}
			}
		default:
			return fmt.Errorf("%w: group %q has unknown kind %s", ErrMalformedTaxonomy, g.Name, g.Kind)
		}
	}
	return nil
}

// AttributeCount returns the number of leaf attribute names.
func (t Taxonomy) AttributeCount() int {
	n := 0
	for _, g := range t.Groups {
		n += len(g.Attributes)
		for _, s := range g.Subgroups {
			n += len(s.Attributes)
		}
	}
	return n
}

// Attributes returns every leaf attribute name in declaration order.
func (t Taxonomy) Attributes() []string {
	out := make([]string, 0, t.AttributeCount())
	for _, g := range t.Groups {
		out = append(out, g.Attributes...)
		for _, s := range g.Subgroups {
			out = append(out, s.Attributes...)
		}
	}
	return out
}

// LoadTaxonomyFile reads a taxonomy from a YAML file.
func LoadTaxonomyFile(path string) (Taxonomy, error) {
	f, err := os.Open(path)
	if err != nil {
		return Taxonomy{}, fmt.Errorf("open taxonomy: %w", err)
	}
	defer f.Close()
	return ParseTaxonomy(f)
}

// ParseTaxonomy decodes a YAML document mapping group names either to a list
// of attribute names or to a mapping of subgroup name to attribute names.
// Mapping order is preserved.
func ParseTaxonomy(r io.Reader) (Taxonomy, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return Taxonomy{}, fmt.Errorf("%w: %v", ErrMalformedTaxonomy, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 || doc.Content[0].Kind != yaml.MappingNode {
		return Taxonomy{}, fmt.Errorf("%w: top level must be a mapping", ErrMalformedTaxonomy)
	}

	root := doc.Content[0]
	var tax Taxonomy
	for i := 0; i+1 < len(root.Content); i += 2 {
		name := root.Content[i].Value
		val := root.Content[i+1]
		switch val.Kind {
		case yaml.SequenceNode:
			attrs, err := scalarList(val)
			if err != nil {
				return Taxonomy{}, fmt.Errorf("%w: group %q: %v", ErrMalformedTaxonomy, name, err)
			}
			tax.Groups = append(tax.Groups, Flat(name, attrs...))
		case yaml.MappingNode:
			g := Nested(name)
			for j := 0; j+1 < len(val.Content); j += 2 {
				subName := val.Content[j].Value
				subVal := val.Content[j+1]
				if subVal.Kind != yaml.SequenceNode {
					return Taxonomy{}, fmt.Errorf("%w: subgroup %q of %q is not a list", ErrMalformedTaxonomy, subName, name)
				}
				attrs, err := scalarList(subVal)
				if err != nil {
					return Taxonomy{}, fmt.Errorf("%w: subgroup %q of %q: %v", ErrMalformedTaxonomy, subName, name, err)
				}
				g.Subgroups = append(g.Subgroups, Sub(subName, attrs...))
			}
			tax.Groups = append(tax.Groups, g)
		default:
			return Taxonomy{}, fmt.Errorf("%w: group %q is neither a list nor a mapping", ErrMalformedTaxonomy, name)
		}
	}
	if err := tax.Validate(); err != nil {
		return Taxonomy{}, err
	}
	return tax, nil
}

func scalarList(n *yaml.Node) ([]string, error) {
	out := make([]string, 0, len(n.Content))
	for _, item := range n.Content {
		if item.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("line %d: expected attribute name", item.Line)
		}
		out = append(out, item.Value)
	}
	return out, nil
}

// DefaultTaxonomy is the physiotherapy evaluation used by the clinic.
func DefaultTaxonomy() Taxonomy {
	return Taxonomy{Groups: []Group{
		Flat("Cualidades Físicas",
			"Realiza levantamiento de pelota de 1.5 kg",
			"Realiza levantamiento de pelota de 2.0 kg",
			"Realiza levantamiento de pelota de 3.0 kg",
			"Realiza levantamiento de mas de 3.0 kg",
			"Levanta y mantiene por 10 segundos.",
			"Levanta y mantiene por mas de 10 segundos",
			"Levanta, mantiene y se desplaza.",
		),
		Flat("Coordinación",
			"Presenta adecuada coordinacion visomanual.",
			"Presenta adecuada coordinacion visopedica.",
		),
		Flat("Equilibrio",
			"Realiza traslado sobre barra de equilibrio.",
			"Se sostiene en balancin en un solo pie.",
			"Se sostiene en balancin con 2 pies por 10 segundos.",
			"Se sostiene en balancin con 2 pies por 20 segundos.",
			"Se sostiene en balancin con 2 pies por 30 segundos.",
		),
		Nested("PATRONES FUNDAMENTALES DE MOVIMIENTO",
			Sub("PATRONES LOCOMOTORES",
				"Salto en dos pies.",
				"Salto en un pie.",
				"Realiza arrastre.",
				"Realiza rollos.",
				"Realiza rolados.",
				"Realiza carrera.",
				"Trepa.",
			),
			Sub("PATRONES MANIPULATIVOS",
				"Lanza pelota con ambas manos.",
				"Lanza pelota con la mano derecha.",
				"Lanza pelota con la mano izquierda.",
				"Atrapa pelotas.",
				"Empuja.",
				"Patea.",
				"Hala.",
				"Alcanza.",
				"Levanta desde el piso.",
			),
			Sub("PLANEAMIENTO MOTOR",
				"Planea, inicia y ejecuta actividades motoras.",
				"Busca estrategias para dar solucion a problemas motores.",
			),
		),
	}}
}
