// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package pluginmgr

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/lanl/gladius-sub000/lib/fault"
	"github.com/lanl/gladius-sub000/lib/overlay"
	"github.com/lanl/gladius-sub000/lib/pluginabi"
)

type fakeObject map[string]any

func (o fakeObject) Lookup(symbol string) (any, error) {
	value, ok := o[symbol]
	if !ok {
		return nil, errors.New("symbol not found")
	}
	return value, nil
}

// fakeOpener serves objects by path and records every open.
type fakeOpener struct {
	objects map[string]fakeObject
	opened  []string
}

func (o *fakeOpener) Open(path string) (Object, error) {
	o.opened = append(o.opened, path)
	object, ok := o.objects[path]
	if !ok {
		return nil, errors.New("invalid ELF header")
	}
	return object, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// makePack creates dir/name with the given objects as regular files.
func makePack(t *testing.T, dir, name string, objects ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	for _, object := range objects {
		if err := os.WriteFile(filepath.Join(path, object), []byte(object), 0o755); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	return path
}

type countingPlugin struct{ closed int }

func (p *countingPlugin) PluginMain(context.Context, pluginabi.Args) error { return nil }

func (p *countingPlugin) Close() error {
	p.closed++
	return nil
}

func entry(abi int, constructs *int, instance pluginabi.Plugin) func() *pluginabi.Info {
	return func() *pluginabi.Info {
		return &pluginabi.Info{
			ABI:     abi,
			Name:    "echo",
			Version: "1.0",
			Construct: func() (pluginabi.Plugin, error) {
				*constructs++
				return instance, nil
			},
		}
	}
}

func TestSearchPathOrder(t *testing.T) {
	got := SearchPath("/opt/gladius", "/site/a::/site/b: ")
	want := []string{"/opt/gladius/lib", "/site/a", "/site/b"}
	if !slices.Equal(got, want) {
		t.Fatalf("SearchPath = %v, want %v", got, want)
	}
	if got := SearchPath("", ""); len(got) != 0 {
		t.Fatalf("SearchPath with nothing configured = %v", got)
	}
}

func TestPackAvailableFirstMatchWins(t *testing.T) {
	prefix := t.TempDir()
	site := t.TempDir()
	// The prefix copy is incomplete but still wins the search.
	first := makePack(t, filepath.Join(prefix, "lib"), "echo", FrontEndObject)
	makePack(t, site, "echo", FrontEndObject, BackEndObject)
	onlySite := makePack(t, site, "trace", FrontEndObject, BackEndObject)

	manager := New(Options{InstallPrefix: prefix, PluginPath: site, Logger: testLogger()})
	if got, ok := manager.PackAvailable("echo"); !ok || got != first {
		t.Errorf("PackAvailable(echo) = %q, %v; want %q", got, ok, first)
	}
	if got, ok := manager.PackAvailable("trace"); !ok || got != onlySite {
		t.Errorf("PackAvailable(trace) = %q, %v; want %q", got, ok, onlySite)
	}
	if _, ok := manager.PackAvailable("missing"); ok {
		t.Error("PackAvailable found a pack that does not exist")
	}
	if _, ok := manager.PackAvailable("../lib"); ok {
		t.Error("PackAvailable accepted a name with a path separator")
	}

	_, err := manager.Find("echo")
	if !errors.Is(err, ErrIncompletePack) {
		t.Fatalf("Find(echo) = %v, want ErrIncompletePack from the first match", err)
	}
	_, err = manager.Find("missing")
	if !errors.Is(err, ErrPackNotFound) || !fault.IsKind(err, fault.PluginDiscovery) {
		t.Fatalf("Find(missing) = %v, want ErrPackNotFound", err)
	}
	if fault.HintOf(err) == "" {
		t.Error("pack-not-found error has no hint")
	}
}

func TestCheckPackReportsEveryMissingObjectWithoutOpening(t *testing.T) {
	opener := &fakeOpener{}
	manager := New(Options{Opener: opener, Logger: testLogger()})

	empty := makePack(t, t.TempDir(), "empty")
	err := manager.CheckPack(empty)
	var incomplete *IncompletePackError
	if !errors.As(err, &incomplete) {
		t.Fatalf("CheckPack = %v, want *IncompletePackError", err)
	}
	if want := []string{FrontEndObject, BackEndObject}; !slices.Equal(incomplete.Missing, want) {
		t.Errorf("Missing = %v, want %v", incomplete.Missing, want)
	}
	if manager.PackLooksGood(empty) {
		t.Error("PackLooksGood true for an empty pack")
	}

	half := makePack(t, t.TempDir(), "half", BackEndObject)
	if err := manager.CheckPack(half); !errors.As(err, &incomplete) || !slices.Equal(incomplete.Missing, []string{FrontEndObject}) {
		t.Errorf("CheckPack(half) = %v", err)
	}

	// A directory where a file should be does not count.
	withDir := makePack(t, t.TempDir(), "dir", BackEndObject)
	if err := os.Mkdir(filepath.Join(withDir, FrontEndObject), 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if manager.PackLooksGood(withDir) {
		t.Error("PackLooksGood accepted a directory as an object")
	}

	complete := makePack(t, t.TempDir(), "complete", FrontEndObject, BackEndObject)
	if !manager.PackLooksGood(complete) {
		t.Errorf("PackLooksGood false for complete pack: %v", manager.CheckPack(complete))
	}
	if len(opener.opened) != 0 {
		t.Fatalf("CheckPack opened %v", opener.opened)
	}
}

func TestLoadPackChecksABIBeforeConstruct(t *testing.T) {
	path := makePack(t, t.TempDir(), "echo", FrontEndObject, BackEndObject)
	constructs := 0
	opener := &fakeOpener{objects: map[string]fakeObject{
		filepath.Join(path, FrontEndObject): {pluginabi.EntrySymbol: entry(pluginabi.ABIVersion-1, &constructs, &countingPlugin{})},
	}}
	manager := New(Options{Opener: opener, Logger: testLogger()})

	_, err := manager.LoadPack(pluginabi.FrontEnd, path)
	if !errors.Is(err, ErrPluginABIMismatch) {
		t.Fatalf("LoadPack = %v, want ErrPluginABIMismatch", err)
	}
	if !fault.IsKind(err, fault.PluginABI) || fault.HintOf(err) == "" {
		t.Errorf("ABI mismatch is %q with hint %q", fault.KindOf(err), fault.HintOf(err))
	}
	if constructs != 0 {
		t.Fatalf("constructor ran %d times for a mismatched plugin", constructs)
	}
}

func TestLoadPackEntryPointErrors(t *testing.T) {
	path := makePack(t, t.TempDir(), "echo", FrontEndObject, BackEndObject)
	frontEnd := filepath.Join(path, FrontEndObject)

	cases := map[string]struct {
		object fakeObject
		want   error
	}{
		"missing symbol": {fakeObject{}, ErrPluginEntryPointNotFound},
		"wrong type":     {fakeObject{pluginabi.EntrySymbol: "not a function"}, ErrPluginEntryPointNotFound},
		"nil info":       {fakeObject{pluginabi.EntrySymbol: func() *pluginabi.Info { return nil }}, ErrPluginEntryPointNotFound},
		"no constructor": {fakeObject{pluginabi.EntrySymbol: func() *pluginabi.Info { return &pluginabi.Info{ABI: pluginabi.ABIVersion} }}, ErrPluginEntryPointNotFound},
	}
	for name, test := range cases {
		t.Run(name, func(t *testing.T) {
			manager := New(Options{Opener: &fakeOpener{objects: map[string]fakeObject{frontEnd: test.object}}, Logger: testLogger()})
			if _, err := manager.LoadPack(pluginabi.FrontEnd, path); !errors.Is(err, test.want) {
				t.Fatalf("LoadPack = %v, want %v", err, test.want)
			}
		})
	}

	manager := New(Options{Opener: &fakeOpener{}, Logger: testLogger()})
	if _, err := manager.LoadPack(pluginabi.FrontEnd, path); !errors.Is(err, ErrPluginLoad) {
		t.Fatalf("LoadPack of an unopenable object = %v, want ErrPluginLoad", err)
	}
}

func TestHandleSingletonAndClose(t *testing.T) {
	path := makePack(t, t.TempDir(), "echo", FrontEndObject, BackEndObject)
	constructs := 0
	instance := &countingPlugin{}
	// A plugin that exports a variable resolves to a pointer.
	variable := entry(pluginabi.ABIVersion, &constructs, instance)
	opener := &fakeOpener{objects: map[string]fakeObject{
		filepath.Join(path, BackEndObject): {pluginabi.EntrySymbol: &variable},
	}}
	manager := New(Options{Opener: opener, Logger: testLogger()})

	handle, err := manager.LoadPack(pluginabi.BackEnd, path)
	if err != nil {
		t.Fatalf("LoadPack: %v", err)
	}
	if handle.Digest.IsZero() || handle.Info.Name != "echo" || handle.Directory != path {
		t.Errorf("handle = %+v", handle)
	}
	if constructs != 0 {
		t.Fatal("LoadPack constructed the plugin")
	}
	first, err := handle.Instance()
	if err != nil {
		t.Fatalf("Instance: %v", err)
	}
	second, _ := handle.Instance()
	if first != second || constructs != 1 {
		t.Fatalf("Instance constructed %d times", constructs)
	}

	if err := handle.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := handle.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if instance.closed != 1 {
		t.Errorf("instance closed %d times, want 1", instance.closed)
	}
	if _, err := handle.Instance(); !errors.Is(err, ErrHandleClosed) {
		t.Errorf("Instance after Close = %v, want ErrHandleClosed", err)
	}
}

func TestPackLoadAndDigest(t *testing.T) {
	dir := t.TempDir()
	path := makePack(t, dir, "echo", FrontEndObject, BackEndObject)
	constructs := 0
	opener := &fakeOpener{objects: map[string]fakeObject{
		filepath.Join(path, FrontEndObject): {pluginabi.EntrySymbol: entry(pluginabi.ABIVersion, &constructs, &countingPlugin{})},
	}}
	manager := New(Options{PluginPath: dir, Opener: opener, Logger: testLogger()})

	pack, err := manager.Find("echo")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	handle, err := pack.Load(pluginabi.FrontEnd)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if again, _ := pack.Load(pluginabi.FrontEnd); again != handle {
		t.Error("loading the same half twice returned a new handle")
	}
	digest, err := pack.Digest(pluginabi.BackEnd)
	if err != nil || digest.IsZero() {
		t.Fatalf("Digest(back end) = %s, %v", digest, err)
	}
	if slices.Contains(opener.opened, pack.Required[pluginabi.BackEnd]) {
		t.Error("hashing the back-end half opened it")
	}
	if err := pack.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestLoadFilters(t *testing.T) {
	path := makePack(t, t.TempDir(), "reduce", FrontEndObject, BackEndObject, "FilterSum.so", "FilterMax.so")
	sum := &overlay.Filter{Name: "sum", New: func([]overlay.Rank) overlay.FilterState { return nil }}
	maximum := &overlay.Filter{Name: "max", New: func([]overlay.Rank) overlay.FilterState { return nil }}
	opener := &fakeOpener{objects: map[string]fakeObject{
		filepath.Join(path, "FilterSum.so"): {pluginabi.FilterSymbol: func() *pluginabi.FilterInfo {
			return &pluginabi.FilterInfo{ABI: pluginabi.ABIVersion, Filters: []*overlay.Filter{sum}}
		}},
		filepath.Join(path, "FilterMax.so"): {pluginabi.FilterSymbol: func() *pluginabi.FilterInfo {
			return &pluginabi.FilterInfo{ABI: pluginabi.ABIVersion, Filters: []*overlay.Filter{maximum}}
		}},
	}}
	manager := New(Options{Opener: opener, Logger: testLogger()})
	set := overlay.NewFilterSet()

	names, err := manager.LoadFilters(path, set)
	if err != nil {
		t.Fatalf("LoadFilters: %v", err)
	}
	if !slices.Equal(names, []string{"max", "sum"}) {
		t.Errorf("registered %v, want [max sum]", names)
	}
	if _, err := set.Lookup("sum"); err != nil {
		t.Errorf("sum not registered: %v", err)
	}
}

func TestLoadFiltersABIMismatch(t *testing.T) {
	path := makePack(t, t.TempDir(), "reduce", "FilterOld.so")
	opener := &fakeOpener{objects: map[string]fakeObject{
		filepath.Join(path, "FilterOld.so"): {pluginabi.FilterSymbol: func() *pluginabi.FilterInfo {
			return &pluginabi.FilterInfo{ABI: 1}
		}},
	}}
	manager := New(Options{Opener: opener, Logger: testLogger()})
	if _, err := manager.LoadFilters(path, overlay.NewFilterSet()); !errors.Is(err, ErrPluginABIMismatch) {
		t.Fatalf("LoadFilters = %v, want ErrPluginABIMismatch", err)
	}
}

func TestList(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	makePack(t, first, "echo", FrontEndObject, BackEndObject)
	makePack(t, second, "echo", FrontEndObject, BackEndObject)
	makePack(t, second, "broken", FrontEndObject)

	manager := New(Options{PluginPath: first + ":" + second, Logger: testLogger()})
	listings := manager.List()
	if len(listings) != 3 {
		t.Fatalf("List returned %d packs: %+v", len(listings), listings)
	}
	if listings[0].Name != "echo" || listings[0].Err != nil || listings[0].Shadowed {
		t.Errorf("listing 0 = %+v", listings[0])
	}
	if listings[1].Name != "broken" || !errors.Is(listings[1].Err, ErrIncompletePack) {
		t.Errorf("listing 1 = %+v", listings[1])
	}
	if listings[2].Name != "echo" || !listings[2].Shadowed {
		t.Errorf("listing 2 = %+v", listings[2])
	}
}
