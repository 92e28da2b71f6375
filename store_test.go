package confstore

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/emberward/confstore/backend"
	"github.com/emberward/confstore/value"
)

func newTestStore(t *testing.T, opts ...Option) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	s := New(DirResolver{Root: root, SaveID: "slot1"}, opts...)
	t.Cleanup(func() { s.Close() })
	return s, root
}

func writeLayer(t *testing.T, root string, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func pathInt(t *testing.T, v value.Value, path string) int64 {
	t.Helper()
	f, ok := value.GetPath(v, path)
	if !ok {
		t.Fatalf("path %s not found in %v", path, v)
	}
	i, ok := f.AsInteger()
	if !ok {
		t.Fatalf("path %s is %s", path, f.Kind())
	}
	return i
}

func TestEffectiveLayerOrder(t *testing.T) {
	defaults := value.Table(map[string]value.Value{
		"video": value.Table(map[string]value.Value{
			"fullscreen": value.Bool(false),
			"vsync":      value.Bool(true),
		}),
		"audio": value.Table(map[string]value.Value{
			"volume": value.Integer(80),
		}),
	})
	s, root := newTestStore(t, WithDefaults(KindSettings, defaults))

	writeLayer(t, root, "settings/global.toml", "[video]\nfullscreen = true\n")
	writeLayer(t, root, "settings/profiles/default.toml", "[audio]\nvolume = 50\n")
	writeLayer(t, root, "settings/user.toml", "[audio]\nvolume = 30\n")

	got, err := s.EffectiveValue(KindSettings)
	if err != nil {
		t.Fatalf("EffectiveValue() error: %v", err)
	}

	if v, _ := value.GetPath(got, "video.fullscreen"); !v.Equal(value.Bool(true)) {
		t.Errorf("video.fullscreen = %v, want global override true", v)
	}
	if v, _ := value.GetPath(got, "video.vsync"); !v.Equal(value.Bool(true)) {
		t.Errorf("video.vsync = %v, want default true", v)
	}
	if got := pathInt(t, got, "audio.volume"); got != 30 {
		t.Errorf("audio.volume = %d, want user override 30", got)
	}
}

func TestMissingLayerFilesAreEmpty(t *testing.T) {
	s, root := newTestStore(t)
	writeLayer(t, root, "settings/global.toml", "theme = \"dark\"\n")

	got, err := s.EffectiveValue(KindSettings)
	if err != nil {
		t.Fatalf("EffectiveValue() error: %v", err)
	}
	v, _ := got.Field("theme")
	if sv, _ := v.AsString(); sv != "dark" {
		t.Errorf("theme = %q", sv)
	}
}

func TestEffectiveExcludesVersionField(t *testing.T) {
	s, root := newTestStore(t)
	writeLayer(t, root, "server/server.toml", "config_version = 2\nport = 7000\n")

	got, err := s.EffectiveValue(KindServer)
	if err != nil {
		t.Fatalf("EffectiveValue() error: %v", err)
	}
	if _, ok := got.Field(backend.VersionKey); ok {
		t.Error("version field leaked into effective snapshot")
	}
	if pathInt(t, got, "port") != 7000 {
		t.Error("port missing")
	}
}

func TestApplyPreservesFormatting(t *testing.T) {
	s, root := newTestStore(t)
	path := writeLayer(t, root, "server/server.toml", `# Managed by the ops team.
[network]
bind_address = "0.0.0.0"
port = 7000 # forwarded on the router
`)

	if err := s.Set(KindServer, LayerServer, "network.port", value.Integer(9000)); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	if !strings.Contains(text, "# Managed by the ops team.") {
		t.Error("file header comment lost")
	}
	if !strings.Contains(text, "port = 9000 # forwarded on the router") {
		t.Errorf("value edit disturbed the line:\n%s", text)
	}

	got, err := s.EffectiveValue(KindServer)
	if err != nil {
		t.Fatalf("EffectiveValue() error: %v", err)
	}
	if pathInt(t, got, "network.port") != 9000 {
		t.Error("read-after-write snapshot is stale")
	}
}

func TestApplyCreatesMissingFile(t *testing.T) {
	s, root := newTestStore(t)

	if err := s.Set(KindSettings, LayerUser, "audio.volume", value.Integer(25)); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, "settings", "user.toml")); err != nil {
		t.Fatalf("user file not created: %v", err)
	}
	got, err := s.EffectiveValue(KindSettings)
	if err != nil {
		t.Fatalf("EffectiveValue() error: %v", err)
	}
	if pathInt(t, got, "audio.volume") != 25 {
		t.Error("written value missing from snapshot")
	}
}

func TestApplyRejectsBadTargets(t *testing.T) {
	s, _ := newTestStore(t)

	err := s.Set(KindSettings, LayerDefaults, "a", value.Integer(1))
	if !errors.Is(err, ErrReadOnlyLayer) {
		t.Errorf("defaults write error = %v, want ErrReadOnlyLayer", err)
	}
	err = s.Set(KindServer, LayerUser, "a", value.Integer(1))
	if !errors.Is(err, ErrLayerNotInChain) {
		t.Errorf("off-chain write error = %v, want ErrLayerNotInChain", err)
	}
	_, err = s.EffectiveValue(FileKind(99))
	if !errors.Is(err, ErrUnknownKind) {
		t.Errorf("unknown kind error = %v, want ErrUnknownKind", err)
	}
}

func TestRemoveFallsBackToLowerLayer(t *testing.T) {
	s, root := newTestStore(t)
	writeLayer(t, root, "settings/global.toml", "theme = \"dark\"\n")
	writeLayer(t, root, "settings/user.toml", "theme = \"light\"\n")

	got, err := s.EffectiveValue(KindSettings)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := got.Field("theme"); !v.Equal(value.String("light")) {
		t.Fatalf("theme = %v before remove", v)
	}

	if err := s.Remove(KindSettings, LayerUser, "theme"); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	got, err = s.EffectiveValue(KindSettings)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := got.Field("theme"); !v.Equal(value.String("dark")) {
		t.Errorf("theme = %v after remove, want global value", v)
	}
}

func TestParseErrorCarriesPath(t *testing.T) {
	s, root := newTestStore(t)
	path := writeLayer(t, root, "settings/global.toml", "[broken\n")

	_, err := s.EffectiveValue(KindSettings)
	var pe *backend.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("error type %T, want *backend.ParseError", err)
	}
	if pe.Path != path {
		t.Errorf("ParseError.Path = %q, want %q", pe.Path, path)
	}
}

func TestMigrationsRunOnLoad(t *testing.T) {
	s, root := newTestStore(t)
	path := writeLayer(t, root, "server/server.toml", `# keep this comment
max_conns = 16
`)

	if err := s.RegisterMigration(KindServer, 0, func(doc backend.Document) error {
		v, ok := value.GetPath(doc.Root(), "max_conns")
		if !ok {
			return nil
		}
		if err := doc.Apply(backend.Set("max_connections", v)); err != nil {
			return err
		}
		return doc.Apply(backend.RemoveKey("max_conns"))
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.RegisterMigration(KindServer, 1, func(doc backend.Document) error {
		return doc.Apply(backend.Set("motd", value.String("welcome")))
	}); err != nil {
		t.Fatal(err)
	}

	got, err := s.EffectiveValue(KindServer)
	if err != nil {
		t.Fatalf("EffectiveValue() error: %v", err)
	}
	if pathInt(t, got, "max_connections") != 16 {
		t.Error("renamed field missing")
	}
	if _, ok := got.Field("max_conns"); ok {
		t.Error("old field survived migration")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	if !strings.Contains(text, "# keep this comment") {
		t.Error("comment lost during migration")
	}
	if !strings.Contains(text, "config_version = 2") {
		t.Errorf("version not persisted:\n%s", text)
	}
}

func TestMigrationClassFollowsFileRole(t *testing.T) {
	s, root := newTestStore(t)
	globalPath := writeLayer(t, root, "settings/global.toml", "theme = \"dark\"\n")
	worldPath := writeLayer(t, root, "saves/slot1/world.toml", "seed = 1\n")

	if err := s.RegisterMigration(KindWorld, 0, func(doc backend.Document) error {
		return doc.Apply(backend.Set("world_migrated", value.Bool(true)))
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.RegisterMigration(KindSettings, 0, func(doc backend.Document) error {
		return doc.Apply(backend.Set("settings_migrated", value.Bool(true)))
	}); err != nil {
		t.Fatal(err)
	}

	// The world chain reads the global file, but that file's role is
	// settings: only settings-class steps may run on it.
	if _, err := s.EffectiveValue(KindWorld); err != nil {
		t.Fatalf("EffectiveValue(KindWorld) error: %v", err)
	}

	global, err := os.ReadFile(globalPath)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(global), "world_migrated") {
		t.Errorf("world-class step ran on the global file:\n%s", global)
	}
	if !strings.Contains(string(global), "settings_migrated") {
		t.Errorf("settings-class step skipped on the global file:\n%s", global)
	}
	if !strings.Contains(string(global), "config_version = 1") {
		t.Errorf("global file version:\n%s", global)
	}

	world, err := os.ReadFile(worldPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(world), "world_migrated") {
		t.Errorf("world-class step skipped on the world file:\n%s", world)
	}
	if strings.Contains(string(world), "settings_migrated") {
		t.Errorf("settings-class step ran on the world file:\n%s", world)
	}
}

func TestLayerClass(t *testing.T) {
	tests := []struct {
		layer Layer
		want  FileKind
		ok    bool
	}{
		{LayerGlobal, KindSettings, true},
		{LayerProfile, KindSettings, true},
		{LayerUser, KindSettings, true},
		{LayerWorld, KindWorld, true},
		{LayerServer, KindServer, true},
		{LayerDefaults, 0, false},
	}
	for _, tt := range tests {
		got, ok := tt.layer.Class()
		if ok != tt.ok {
			t.Errorf("%s.Class() ok = %v, want %v", tt.layer, ok, tt.ok)
			continue
		}
		if ok && got != tt.want.Class() {
			t.Errorf("%s.Class() = %q, want %q", tt.layer, got, tt.want.Class())
		}
	}
}

func TestApplySharedLayerInvalidatesOtherKinds(t *testing.T) {
	s, root := newTestStore(t)
	writeLayer(t, root, "settings/global.toml", "theme = \"dark\"\n")

	// Prime both snapshots so each kind caches the global layer.
	for _, kind := range []FileKind{KindSettings, KindWorld} {
		if _, err := s.EffectiveValue(kind); err != nil {
			t.Fatalf("EffectiveValue(%s) error: %v", kind, err)
		}
	}

	if err := s.Set(KindWorld, LayerGlobal, "theme", value.String("light")); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	got, err := s.EffectiveValue(KindSettings)
	if err != nil {
		t.Fatalf("EffectiveValue(KindSettings) error: %v", err)
	}
	v, _ := got.Field("theme")
	if sv, _ := v.AsString(); sv != "light" {
		t.Errorf("settings theme = %q after write through world chain, want light", sv)
	}
}

func TestEffectiveTyped(t *testing.T) {
	type network struct {
		Port           int64 `toml:"port"`
		MaxConnections int64 `toml:"max_connections"`
	}
	type serverCfg struct {
		Network network `toml:"network"`
	}

	s, root := newTestStore(t)
	writeLayer(t, root, "server/server.toml", "[network]\nport = 7000\nmax_connections = 32\n")

	cfg, err := Effective[serverCfg](s, KindServer)
	if err != nil {
		t.Fatalf("Effective() error: %v", err)
	}
	if cfg.Network.Port != 7000 || cfg.Network.MaxConnections != 32 {
		t.Errorf("Effective() = %+v", cfg)
	}
}

func TestEffectiveFromChain(t *testing.T) {
	s, root := newTestStore(t)
	writeLayer(t, root, "settings/global.toml", "volume = 80\n")
	writeLayer(t, root, "settings/user.toml", "volume = 20\n")

	got, err := s.EffectiveValueFromChain(KindSettings, []Layer{LayerGlobal})
	if err != nil {
		t.Fatalf("EffectiveValueFromChain() error: %v", err)
	}
	if pathInt(t, got, "volume") != 80 {
		t.Error("chain subset included higher layer")
	}

	_, err = s.EffectiveValueFromChain(KindSettings, []Layer{LayerServer})
	if !errors.Is(err, ErrLayerNotInChain) {
		t.Errorf("error = %v, want ErrLayerNotInChain", err)
	}
}

func TestWorldChainSharesGlobalLayer(t *testing.T) {
	s, root := newTestStore(t)
	writeLayer(t, root, "settings/global.toml", "[gameplay]\ndifficulty = \"normal\"\n")
	writeLayer(t, root, "saves/slot1/world.toml", "[gameplay]\ndifficulty = \"hard\"\n")

	got, err := s.EffectiveValue(KindWorld)
	if err != nil {
		t.Fatalf("EffectiveValue() error: %v", err)
	}
	v, _ := value.GetPath(got, "gameplay.difficulty")
	if sv, _ := v.AsString(); sv != "hard" {
		t.Errorf("difficulty = %q, want world override", sv)
	}
}

func TestCloseStopsStore(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if _, err := s.EffectiveValue(KindServer); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("EffectiveValue() after Close = %v, want ErrStoreClosed", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
}
