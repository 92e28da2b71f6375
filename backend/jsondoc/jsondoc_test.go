package jsondoc

import (
	"errors"
	"strings"
	"testing"

	"github.com/emberward/confstore/backend"
	"github.com/emberward/confstore/value"
)

const worldConfig = `{
  "name": "frontier",
  "difficulty": "hard",
  "rules": {
    "pvp": false,
    "max_players": 16
  },
  "mods": [
    {"id": "terrain-plus", "enabled": true},
    {"id": "fastcraft", "enabled": false}
  ]
}
`

func mustParse(t *testing.T, text string) backend.Document {
	t.Helper()
	doc, err := New().Parse([]byte(text))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	return doc
}

func TestParseRoundTrip(t *testing.T) {
	doc := mustParse(t, worldConfig)
	if got := string(doc.Bytes()); got != worldConfig {
		t.Errorf("Bytes() does not round-trip:\n%s", got)
	}
}

func TestParseWhitespaceOnly(t *testing.T) {
	doc, err := New().Parse([]byte("  \n"))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if !doc.Root().Equal(value.EmptyTable()) {
		t.Errorf("root = %v, want empty table", doc.Root())
	}
}

func TestParseError(t *testing.T) {
	_, err := New().Parse([]byte("{\n  \"a\": 1,\n}\n"))
	var pe *backend.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("error type %T, want *backend.ParseError", err)
	}
	if pe.Line < 1 {
		t.Errorf("ParseError.Line = %d", pe.Line)
	}
}

func TestParseRejectsNonObject(t *testing.T) {
	_, err := New().Parse([]byte("[1, 2, 3]\n"))
	var pe *backend.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want *backend.ParseError", err)
	}
}

func TestNumberKinds(t *testing.T) {
	doc := mustParse(t, `{"n": 3, "f": 3.5, "e": 1e2}`)
	root := doc.Root()
	if v, _ := root.Field("n"); v.Kind() != value.KindInteger {
		t.Errorf("n kind = %v, want integer", v.Kind())
	}
	if v, _ := root.Field("f"); v.Kind() != value.KindFloat {
		t.Errorf("f kind = %v, want float", v.Kind())
	}
	if v, _ := root.Field("e"); v.Kind() != value.KindFloat {
		t.Errorf("e kind = %v, want float", v.Kind())
	}
}

func TestSetPreservesUntouchedBytes(t *testing.T) {
	doc := mustParse(t, worldConfig)
	if err := doc.Apply(backend.Set("rules.max_players", value.Integer(32))); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	text := string(doc.Bytes())
	if !strings.Contains(text, "\"difficulty\": \"hard\"") {
		t.Error("unrelated field rewritten")
	}
	v, _ := value.GetPath(doc.Root(), "rules.max_players")
	if i, _ := v.AsInteger(); i != 32 {
		t.Errorf("rules.max_players = %d, want 32", i)
	}
}

func TestSetThroughScalarFails(t *testing.T) {
	doc := mustParse(t, worldConfig)
	before := string(doc.Bytes())
	err := doc.Apply(backend.Set("name.inner", value.Integer(1)))
	if !errors.Is(err, backend.ErrNotTable) {
		t.Fatalf("error = %v, want ErrNotTable", err)
	}
	if string(doc.Bytes()) != before {
		t.Error("failed operation modified document bytes")
	}
}

func TestRemoveKey(t *testing.T) {
	doc := mustParse(t, worldConfig)
	if err := doc.Apply(backend.RemoveKey("rules.pvp")); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if _, ok := value.GetPath(doc.Root(), "rules.pvp"); ok {
		t.Error("removed key still present")
	}

	err := doc.Apply(backend.RemoveKey("rules.pvp"))
	if !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("second remove error = %v, want ErrNotFound", err)
	}
}

func TestRemoveIndex(t *testing.T) {
	doc := mustParse(t, worldConfig)
	if err := doc.Apply(backend.RemoveIndex("mods", 0)); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	mods, _ := doc.Root().Field("mods")
	if mods.Len() != 1 {
		t.Fatalf("mods length = %d, want 1", mods.Len())
	}
	if id, _ := mods.Elems()[0].Fields()["id"].AsString(); id != "fastcraft" {
		t.Errorf("remaining id = %q", id)
	}

	err := doc.Apply(backend.RemoveIndex("mods", 7))
	if !errors.Is(err, backend.ErrOutOfBounds) {
		t.Errorf("error = %v, want ErrOutOfBounds", err)
	}
}

func TestRemoveMatch(t *testing.T) {
	doc := mustParse(t, worldConfig)
	if err := doc.Apply(backend.RemoveMatch("mods", "id", value.String("fastcraft"))); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	mods, _ := doc.Root().Field("mods")
	if mods.Len() != 1 {
		t.Errorf("mods length = %d, want 1", mods.Len())
	}

	err := doc.Apply(backend.RemoveMatch("mods", "id", value.String("missing")))
	if !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestUpsert(t *testing.T) {
	doc := mustParse(t, worldConfig)

	update := value.Table(map[string]value.Value{
		"id":      value.String("fastcraft"),
		"enabled": value.Bool(true),
	})
	if err := doc.Apply(backend.Upsert("mods", "id", value.String("fastcraft"), update)); err != nil {
		t.Fatalf("upsert update error: %v", err)
	}
	mods, _ := doc.Root().Field("mods")
	if en, _ := mods.Elems()[1].Fields()["enabled"].AsBool(); !en {
		t.Error("matched element not updated")
	}
	if mods.Len() != 2 {
		t.Errorf("mods length = %d after update, want 2", mods.Len())
	}

	add := value.Table(map[string]value.Value{
		"id":      value.String("nightfall"),
		"enabled": value.Bool(true),
	})
	if err := doc.Apply(backend.Upsert("mods", "id", value.String("nightfall"), add)); err != nil {
		t.Fatalf("upsert append error: %v", err)
	}
	mods, _ = doc.Root().Field("mods")
	if mods.Len() != 3 {
		t.Errorf("mods length = %d after append, want 3", mods.Len())
	}
}

func TestUpsertCreatesMissingArray(t *testing.T) {
	doc := mustParse(t, `{"name": "x"}`)
	elem := value.Table(map[string]value.Value{"id": value.String("first")})
	if err := doc.Apply(backend.Upsert("plugins", "id", value.String("first"), elem)); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	plugins, ok := doc.Root().Field("plugins")
	if !ok || plugins.Len() != 1 {
		t.Fatalf("plugins = %v", plugins)
	}
}

func TestVersion(t *testing.T) {
	doc := mustParse(t, `{"config_version": 2, "name": "x"}`)
	if v, ok := doc.Version(); !ok || v != 2 {
		t.Errorf("Version() = %d, %v", v, ok)
	}
	if err := doc.SetVersion(3); err != nil {
		t.Fatalf("SetVersion() error: %v", err)
	}
	if v, _ := doc.Version(); v != 3 {
		t.Errorf("Version() after bump = %d", v)
	}
}

func TestNewDocument(t *testing.T) {
	doc := New().NewDocument()
	if err := doc.Apply(backend.Set("a.b", value.Integer(1))); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	v, ok := value.GetPath(doc.Root(), "a.b")
	if !ok {
		t.Fatal("a.b not found")
	}
	if i, _ := v.AsInteger(); i != 1 {
		t.Errorf("a.b = %d", i)
	}
}

func TestDecode(t *testing.T) {
	type rules struct {
		PVP        bool  `json:"pvp"`
		MaxPlayers int64 `json:"max_players"`
	}
	type world struct {
		Name  string `json:"name"`
		Rules rules  `json:"rules"`
	}
	doc := mustParse(t, worldConfig)
	var out world
	if err := New().Decode(doc.Root(), &out); err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if out.Name != "frontier" || out.Rules.MaxPlayers != 16 {
		t.Errorf("Decode() = %+v", out)
	}
}
