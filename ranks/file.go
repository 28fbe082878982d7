package ranks

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type tableFile struct {
	Patents []Patent `yaml:"patents"`
}

// Parse reads a YAML document of the form:
//
//	patents:
//	  - name: Iniciante Digital
//	    min_xp: 0
//	    icon_library: FontAwesome
//	    icon_name: pagelines
func Parse(data []byte) (*Table, error) {
	var f tableFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode patent table: %w", err)
	}
	return NewTable(f.Patents)
}

// LoadFile parses the patent table at path.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read patent table: %w", err)
	}
	return Parse(data)
}

// Marshal renders the table in the same format Parse accepts.
func (t *Table) Marshal() ([]byte, error) {
	return yaml.Marshal(tableFile{Patents: t.Tiers()})
}
