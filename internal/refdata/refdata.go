// Package refdata loads the static reference tables the pipeline consumes:
// the commodity id/name mapping, the composite (ore/ice) lists, the
// reprocessing yield table and the priceable-material set. Everything is
// read once per run and never mutated.
package refdata

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

type Store struct {
	idToName  map[int64]string
	nameToID  map[string]int64
	oreIDs    []int64
	iceIDs    map[int64]bool
	yields    map[string]map[string]float64
	priceable map[int64]bool
}

// Files names every reference file the store needs.
type Files struct {
	ItemIDs   string
	OreList   string
	IceList   string
	Yields    string
	Priceable string
}

func Load(files Files) (*Store, error) {
	s := &Store{
		idToName:  make(map[int64]string),
		nameToID:  make(map[string]int64),
		iceIDs:    make(map[int64]bool),
		priceable: make(map[int64]bool),
	}

	if err := s.loadItemIDs(files.ItemIDs); err != nil {
		return nil, err
	}

	if err := loadJSON(files.OreList, &s.oreIDs); err != nil {
		return nil, fmt.Errorf("failed to load ore list: %w", err)
	}

	var iceIDs []int64
	if err := loadJSON(files.IceList, &iceIDs); err != nil {
		return nil, fmt.Errorf("failed to load ice product list: %w", err)
	}
	for _, id := range iceIDs {
		s.iceIDs[id] = true
	}

	if err := loadJSON(files.Yields, &s.yields); err != nil {
		return nil, fmt.Errorf("failed to load reprocess yield table: %w", err)
	}

	var priceableIDs []int64
	if err := loadJSON(files.Priceable, &priceableIDs); err != nil {
		return nil, fmt.Errorf("failed to load priceable material list: %w", err)
	}
	for _, id := range priceableIDs {
		s.priceable[id] = true
	}

	return s, nil
}

// loadItemIDs parses the typeID/groupID/typeName CSV. The export carries a
// duplicated trailing column, so extra fields are tolerated.
func (s *Store) loadItemIDs(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open item id table: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header := true
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to parse item id table: %w", err)
		}
		if header {
			header = false
			continue
		}
		if len(record) < 3 {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSpace(record[0]), 10, 64)
		if err != nil {
			continue
		}
		name := strings.TrimSpace(record[2])
		s.idToName[id] = name
		s.nameToID[name] = id
	}
	return nil
}

func loadJSON(path string, v interface{}) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(content, v)
}

// LoadJSONFile reads one ad hoc JSON reference file (e.g. the report query
// list) into v.
func LoadJSONFile(path string, v interface{}) error {
	return loadJSON(path, v)
}

// NameForID resolves a commodity's human-readable name, "" when unknown.
func (s *Store) NameForID(typeID int64) string {
	return s.idToName[typeID]
}

// IDForName resolves a commodity identifier by name.
func (s *Store) IDForName(name string) (int64, bool) {
	id, ok := s.nameToID[strings.TrimSpace(name)]
	return id, ok
}

// OreIDs lists the composite commodities to value each run.
func (s *Store) OreIDs() []int64 {
	return s.oreIDs
}

// IsIceProduct reports whether the composite reprocesses in batches of 1
// instead of the standard 100.
func (s *Store) IsIceProduct(typeID int64) bool {
	return s.iceIDs[typeID]
}

// IsPriceable reports whether a material belongs to the configured set of
// commodities with usable market prices.
func (s *Store) IsPriceable(typeID int64) bool {
	return s.priceable[typeID]
}

// YieldFor returns the positive-quantity yield entries for a composite,
// keyed by material name. Zero and negative quantities mean "not produced"
// and are dropped here.
func (s *Store) YieldFor(name string) map[string]float64 {
	raw, ok := s.yields[name]
	if !ok {
		return nil
	}
	out := make(map[string]float64, len(raw))
	for material, qty := range raw {
		if qty > 0 {
			out[material] = qty
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
